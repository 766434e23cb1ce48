package sqlinline

// QInsertMediaRecord appends to the user_media history table. Rows here are
// never updated or deleted by this service; the table is the billing-audit
// trail for jobs whose payment was captured but whose generation failed.
const QInsertMediaRecord = `--sql 4b9e2d70-8f15-4a63-95c7-e08d361fa2b9
insert into user_media (
    id,
    user_id,
    task_id,
    media_type,
    status,
    model_name,
    prompt,
    cost,
    error_message,
    created_at
)
values (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, now());
`
