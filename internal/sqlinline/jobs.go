// Package sqlinline holds the SQL executed by the postgres stores. Every
// constant starts with a `--sql <uuid>` marker consumed by infra.SQLRunner
// for log correlation.
package sqlinline

const QInsertPendingJob = `--sql 7b1f2c8e-9a41-4c6d-8e52-3f0a1b9d4e67
insert into pending_jobs (
    task_id,
    user_id,
    job_type,
    provider,
    status,
    metadata,
    device_token,
    created_at,
    updated_at
)
values ($1, $2, $3, $4, $5, $6, $7, now(), now());
`

const QSelectPendingJob = `--sql 2d9e4f71-6b3a-4e85-9c10-a8f52d7e1b94
select task_id, user_id, job_type, provider, status,
       coalesce(result_url, ''), coalesce(error_message, ''),
       metadata, coalesce(device_token, ''), notification_sent,
       created_at, updated_at, completed_at
from pending_jobs
where task_id = $1;
`

const QListPendingJobsByUser = `--sql 5a8c1d3f-2e74-4b96-a1c8-7d92e4f06b35
select task_id, user_id, job_type, provider, status,
       coalesce(result_url, ''), coalesce(error_message, ''),
       metadata, coalesce(device_token, ''), notification_sent,
       created_at, updated_at, completed_at
from pending_jobs
where user_id = $1
order by created_at desc;
`

// QUpdateJobStatus only touches rows that have not reached a terminal
// status. A duplicate or conflicting callback for an already-terminal row
// matches zero rows, which the store treats as an idempotent no-op.
const QUpdateJobStatus = `--sql 9c3b7e20-4d18-4f6a-b5e9-1a82c6d905f4
update pending_jobs
set status        = $2,
    result_url    = coalesce(nullif($3, ''), result_url),
    error_message = coalesce(nullif($4, ''), error_message),
    updated_at    = now(),
    completed_at  = case
        when $2 in ('completed', 'failed') and completed_at is null then now()
        else completed_at
    end
where task_id = $1
  and status not in ('completed', 'failed');
`

const QSelectJobStatusOnly = `--sql e4d82a6f-1c59-4b07-8d3e-6f90b2a7c418
select status from pending_jobs where task_id = $1;
`

const QUpdateJobProvider = `--sql 1f6a9d42-8e07-4c3b-92f5-b4d71e8a0c26
update pending_jobs
set provider = $2, updated_at = now()
where task_id = $1;
`

const QUpdateJobMetadata = `--sql 8a2e5c91-3f64-4d08-a7b1-c95d30e6f287
update pending_jobs
set metadata = $2, updated_at = now()
where task_id = $1;
`

const QMarkNotificationSent = `--sql 6e0d3b85-7a92-4f14-b6c3-d28a51f90e73
update pending_jobs
set notification_sent = true, updated_at = now()
where task_id = $1;
`

const QDeletePendingJob = `--sql 3c7f1e58-0b26-4a93-8d47-e612f9a0b5c8
delete from pending_jobs where task_id = $1;
`

const QCleanupByAge = `--sql b5d94a07-6c31-4e82-9f05-27a8e3d1c649
delete from pending_jobs
where status = any($1)
  and updated_at < $2;
`

const QReapOrphaned = `--sql 0a4e8c26-5d79-4b13-a8e6-f93c07d24b51
delete from pending_jobs
where status = 'pending'
  and created_at < $1;
`

const QListStuckJobs = `--sql d8317fa2-4e60-4c95-b7d2-08a5c1e63f94
select task_id, user_id, job_type, provider, status,
       coalesce(result_url, ''), coalesce(error_message, ''),
       metadata, coalesce(device_token, ''), notification_sent,
       created_at, updated_at, completed_at
from pending_jobs
where status in ('pending', 'processing')
  and created_at < $1
order by created_at asc;
`
