package sqlinline

const QCreateJobsTable = `--sql 0b6f3c1e-5a2d-4e8f-9c71-2d4a6b8e0f13
create table if not exists download_jobs (
    id uuid primary key,
    status text not null,
    record jsonb not null,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QCreateJobsStatusIndex = `--sql 6a1d9e47-2c3b-4f50-8e1a-7b9c0d2e4f68
create index if not exists download_jobs_status_idx on download_jobs (status);
`

const QInsertJob = `--sql 3c8e2f1a-9b4d-4a6e-b7c5-1e0f2a3b4c5d
insert into download_jobs (id, status, record, created_at)
values ($1, $2, $3, $4);
`

const QSelectJob = `--sql 8d2a4b6c-1e3f-4a5b-9c7d-0e1f2a3b4c6e
select record
from download_jobs
where id = $1;
`

const QSelectJobForUpdate = `--sql 5e7f9a1b-3c5d-4e6f-8a9b-1c2d3e4f5a6b
select record
from download_jobs
where id = $1
for update;
`

const QUpdateJob = `--sql 9f1a3b5c-7d9e-4f1a-b3c5-d7e9f1a3b5c7
update download_jobs
set status = $2, record = $3, updated_at = now()
where id = $1;
`

const QDeleteJob = `--sql 2b4d6f8a-0c2e-4a6b-8d0f-2a4c6e8a0b2d
delete from download_jobs
where id = $1;
`

const QListJobIDs = `--sql 7c9e1a3b-5d7f-4b9c-a1e3-5f7a9c1e3b5d
select id::text
from download_jobs
order by created_at asc;
`
