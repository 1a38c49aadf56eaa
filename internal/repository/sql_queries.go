package repository

const taskColumns = `
    id, work_item_id, task_date, checklist_id, facility_id, facility_name,
    name, description, work_type, location, timezone,
    scheduled_start, scheduled_end, status,
    started_at, started_by, completed_at, completed_by, completion_comment, photos,
    created_at, updated_at`

const ListFacilitiesSQL = `
SELECT id, name, owner_id, notify_chat_id, timezone, working_days,
       work_start, work_end, require_photo, require_comment, min_photos
FROM facilities
ORDER BY name, id;
`

const GetFacilitySQL = `
SELECT id, name, owner_id, notify_chat_id, timezone, working_days,
       work_start, work_end, require_photo, require_comment, min_photos
FROM facilities
WHERE id = $1;
`

const ListNodesSQL = `
SELECT id, COALESCE(parent_id, ''), kind, name, synthetic
FROM hierarchy_nodes;
`

// AnchorPathSQL walks from a node up to its root. Depth is capped so that a
// corrupted parent chain cannot loop forever.
const AnchorPathSQL = `
WITH RECURSIVE path AS (
    SELECT id, parent_id, kind, name, synthetic, 0 AS depth
    FROM hierarchy_nodes
    WHERE id = $1
    UNION ALL
    SELECT n.id, n.parent_id, n.kind, n.name, n.synthetic, p.depth + 1
    FROM hierarchy_nodes n
    JOIN path p ON n.id = p.parent_id
    WHERE p.depth < 32
)
SELECT id, COALESCE(parent_id, ''), kind, name, synthetic
FROM path
ORDER BY depth DESC;
`

const ListWorkItemsSQL = `
SELECT id, name, description, work_type, frequency, notes, anchor_kind, anchor_id, active_from, active_to
FROM work_items
ORDER BY id;
`

const GetWorkItemSQL = `
SELECT id, name, description, work_type, frequency, notes, anchor_kind, anchor_id, active_from, active_to
FROM work_items
WHERE id = $1;
`

const ListTasksSQL = `
SELECT` + taskColumns + `
FROM tasks
WHERE task_date BETWEEN $1 AND $2
  AND ($3::text[] IS NULL OR facility_id = ANY($3))
ORDER BY scheduled_start, id;
`

const ListOverdueCandidatesSQL = `
SELECT` + taskColumns + `
FROM tasks
WHERE status = ANY($1)
  AND scheduled_end < $2
ORDER BY scheduled_end, id;
`

const GetTaskForUpdateSQL = `
SELECT` + taskColumns + `
FROM tasks
WHERE id = $1
FOR UPDATE;
`

const InsertTaskSQL = `
INSERT INTO tasks (` + taskColumns + `
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
ON CONFLICT (id) DO NOTHING;
`

const UpdateTaskSQL = `
UPDATE tasks
SET status = $2,
    started_at = $3,
    started_by = $4,
    completed_at = $5,
    completed_by = $6,
    completion_comment = $7,
    photos = $8,
    updated_at = $9
WHERE id = $1;
`

const EnsureChecklistSQL = `
INSERT INTO checklists (id, facility_id, checklist_date, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (facility_id, checklist_date) DO NOTHING;
`

const GetChecklistSQL = `
SELECT id, facility_id, checklist_date, retention_hold, created_at
FROM checklists
WHERE facility_id = $1 AND checklist_date = $2;
`

// ListExpiredChecklistsSQL selects checklists before the horizon whose tasks are all terminal.
// $2 is the list of terminal statuses.
const ListExpiredChecklistsSQL = `
SELECT c.id, c.facility_id, c.checklist_date, c.retention_hold, c.created_at, count(t.id) AS task_count
FROM checklists c
LEFT JOIN tasks t ON t.checklist_id = c.id
WHERE c.checklist_date < $1
  AND NOT c.retention_hold
GROUP BY c.id
HAVING count(t.id) FILTER (WHERE t.status <> ALL($2)) = 0
ORDER BY c.checklist_date, c.id;
`

// DeleteChecklistSQL re-checks the retention conditions so a concurrent
// materialization or hold is never lost. Tasks and their comments cascade.
const DeleteChecklistSQL = `
DELETE FROM checklists c
WHERE c.id = $1
  AND NOT c.retention_hold
  AND NOT EXISTS (
      SELECT 1 FROM tasks t WHERE t.checklist_id = c.id AND t.status <> ALL($2)
  );
`

const InsertCommentSQL = `
INSERT INTO task_comments (id, task_id, actor_id, actor_role, body, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`

const ListCommentsSQL = `
SELECT id, task_id, actor_id, actor_role, body, created_at
FROM task_comments
WHERE task_id = $1
ORDER BY created_at, id;
`

const ListTaskCommentsSQL = `
SELECT id, task_id, actor_id, actor_role, body, created_at
FROM task_comments
WHERE task_id = ANY($1)
ORDER BY task_id, created_at, id;
`

const InsertAuditSQL = `
INSERT INTO audit_entries (id, task_id, actor_id, actor_role, action, prev_status, new_status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
