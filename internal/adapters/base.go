package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"helpt/internal/models"
	"helpt/internal/reconcile"
)

// base holds the provider-independent reconciliation logic
type base struct {
	ds                    *models.DataSource
	store                 Store
	logger                *slog.Logger
	deleteLimit           int
	deactivateUnseenUsers bool
}

var syncLocks = struct {
	mu sync.Mutex
	m  map[uint]*sync.Mutex
}{m: make(map[uint]*sync.Mutex)}

// lock serializes sync passes of one data source within this process
func (b *base) lock() func() {
	syncLocks.mu.Lock()
	l, ok := syncLocks.m[b.ds.ID]
	if !ok {
		l = &sync.Mutex{}
		syncLocks.m[b.ds.ID] = l
	}
	syncLocks.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func tally(c *Counts, created bool, changes *reconcile.Changes) {
	switch {
	case created:
		c.Created++
	case changes.Changed():
		c.Updated++
	default:
		c.Unchanged++
	}
}

func (b *base) recordChange(ctx context.Context, entity string, id uint, originID string, created bool, fields []string) error {
	return b.store.RecordChange(ctx, &models.SyncChange{
		DataSourceID: b.ds.ID,
		Entity:       entity,
		EntityID:     id,
		OriginID:     originID,
		Created:      created,
		Fields:       fields,
	})
}

// updateWorkspaces reconciles the data source's workspaces. A partial pass
// carries a single workspace and never closes the others.
func (b *base) updateWorkspaces(ctx context.Context, records []WorkspaceRecord, partial bool, rep *Report) error {
	existing, err := b.store.Workspaces(ctx, b.ds.ID)
	if err != nil {
		return fmt.Errorf("failed to load workspaces: %w", err)
	}

	syncher := reconcile.New(existing, func(ws *models.Workspace) string { return ws.OriginID },
		reconcile.Options[*models.Workspace]{
			Delete: func(ws *models.Workspace) error {
				if _, err := ws.SetState(models.StateClosed); err != nil {
					return err
				}
				b.logger.Debug("marking workspace closed", "workspace", ws.String())
				if err := b.store.SaveWorkspace(ctx, ws); err != nil {
					return err
				}
				rep.Workspaces.Closed++
				return b.recordChange(ctx, models.EntityWorkspace, ws.ID, ws.OriginID, false, []string{"state"})
			},
			IsDeleted:   func(ws *models.Workspace) bool { return ws.State == models.StateClosed },
			SkipDelete:  partial,
			DeleteLimit: b.deleteLimit,
		})

	for _, rec := range records {
		ws, found := syncher.Get(rec.OriginID)
		if !found {
			ws = &models.Workspace{DataSourceID: b.ds.ID, OriginID: rec.OriginID, State: models.StateOpen}
		}

		var changes reconcile.Changes
		if err := reconcile.Merge(&changes, ws.MergeFields(), rec.Data); err != nil {
			return fmt.Errorf("workspace %s: %w", rec.OriginID, err)
		}
		if rec.State != "" {
			changed, err := ws.SetState(rec.State)
			if err != nil {
				return fmt.Errorf("workspace %s: %w", rec.OriginID, err)
			}
			if changed {
				changes.Add("state")
			}
		}

		created := ws.ID == 0
		if created || changes.Changed() {
			if created {
				b.logger.Info("creating new workspace", "workspace", ws.String())
			}
			if err := b.store.SaveWorkspace(ctx, ws); err != nil {
				return fmt.Errorf("failed to save workspace %s: %w", rec.OriginID, err)
			}
			if err := b.recordChange(ctx, models.EntityWorkspace, ws.ID, ws.OriginID, created, changes.Fields()); err != nil {
				return err
			}
		}
		tally(&rep.Workspaces, created, &changes)

		if err := b.updateLists(ctx, ws, rec.Lists, rep); err != nil {
			return err
		}
		syncher.Mark(ws)
	}

	return syncher.Finish()
}

// updateLists reconciles the lists of one workspace. The incoming set is
// always the complete list set of the workspace.
func (b *base) updateLists(ctx context.Context, ws *models.Workspace, records []ListRecord, rep *Report) error {
	existing, err := b.store.Lists(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to load lists of %s: %w", ws, err)
	}

	syncher := reconcile.New(existing, func(l *models.WorkspaceList) string { return l.OriginID },
		reconcile.Options[*models.WorkspaceList]{
			Delete: func(l *models.WorkspaceList) error {
				if _, err := l.SetState(models.StateClosed); err != nil {
					return err
				}
				b.logger.Debug("marking list closed", "list", l.String(), "workspace", ws.String())
				if err := b.store.SaveList(ctx, l); err != nil {
					return err
				}
				rep.Lists.Closed++
				return b.recordChange(ctx, models.EntityList, l.ID, l.OriginID, false, []string{"state"})
			},
			IsDeleted:   func(l *models.WorkspaceList) bool { return l.State == models.StateClosed },
			DeleteLimit: b.deleteLimit,
		})

	for _, rec := range records {
		l, found := syncher.Get(rec.OriginID)
		if !found {
			l = &models.WorkspaceList{WorkspaceID: ws.ID, OriginID: rec.OriginID, State: models.StateOpen}
		}

		var changes reconcile.Changes
		if err := reconcile.Merge(&changes, l.MergeFields(), rec.Data); err != nil {
			return fmt.Errorf("list %s: %w", rec.OriginID, err)
		}
		if l.TaskState == nil && ws.DefaultListTaskState != nil {
			ts := *ws.DefaultListTaskState
			l.TaskState = &ts
			changes.Add("task_state")
		}
		if rec.State != "" {
			changed, err := l.SetState(rec.State)
			if err != nil {
				return fmt.Errorf("list %s: %w", rec.OriginID, err)
			}
			if changed {
				changes.Add("state")
			}
		}

		created := l.ID == 0
		if created || changes.Changed() {
			if created {
				b.logger.Debug("creating new workspace list", "list", l.String(), "workspace", ws.String())
			}
			if err := b.store.SaveList(ctx, l); err != nil {
				return fmt.Errorf("failed to save list %s: %w", rec.OriginID, err)
			}
			if err := b.recordChange(ctx, models.EntityList, l.ID, l.OriginID, created, changes.Fields()); err != nil {
				return err
			}
		}
		tally(&rep.Lists, created, &changes)
		syncher.Mark(l)
	}

	return syncher.Finish()
}

// updateTasks reconciles the tasks of one workspace. Users referenced by
// the records must have been saved first.
func (b *base) updateTasks(ctx context.Context, ws *models.Workspace, records []TaskRecord, partial bool, rep *Report) error {
	users, err := b.store.Users(ctx, b.ds.ID)
	if err != nil {
		return fmt.Errorf("failed to load data source users: %w", err)
	}
	usersByOrigin := make(map[string]*models.DataSourceUser, len(users))
	for _, u := range users {
		usersByOrigin[u.OriginID] = u
	}

	lists, err := b.store.Lists(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to load lists of %s: %w", ws, err)
	}
	listsByOrigin := make(map[string]*models.WorkspaceList, len(lists))
	for _, l := range lists {
		listsByOrigin[l.OriginID] = l
	}

	// Tasks inherit the project of a workspace linked to exactly one
	projects, err := b.store.WorkspaceProjects(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to load projects of %s: %w", ws, err)
	}
	var defaultProject *uint
	if len(projects) == 1 {
		defaultProject = &projects[0].ID
	}

	existing, err := b.store.Tasks(ctx, ws.ID)
	if err != nil {
		return fmt.Errorf("failed to load tasks of %s: %w", ws, err)
	}

	syncher := reconcile.New(existing, func(t *models.Task) string { return t.OriginID },
		reconcile.Options[*models.Task]{
			Delete: func(t *models.Task) error {
				if _, err := t.SetState(models.StateClosed); err != nil {
					return err
				}
				b.logger.Debug("marking task closed", "task", t.String(), "workspace", ws.String())
				if err := b.store.SaveTask(ctx, t); err != nil {
					return err
				}
				rep.Tasks.Closed++
				return b.recordChange(ctx, models.EntityTask, t.ID, t.OriginID, false, []string{"state"})
			},
			IsDeleted:   func(t *models.Task) bool { return t.State == models.StateClosed },
			SkipDelete:  partial,
			DeleteLimit: b.deleteLimit,
		})

	for _, rec := range records {
		task, found := syncher.Get(rec.OriginID)
		if !found {
			task = &models.Task{WorkspaceID: ws.ID, OriginID: rec.OriginID, State: models.StateOpen}
		}
		syncher.Mark(task)

		data := make(reconcile.Values, len(rec.Data)+2)
		for k, v := range rec.Data {
			data[k] = v
		}

		var list *models.WorkspaceList
		if rec.ListOriginID != "" {
			list = listsByOrigin[rec.ListOriginID]
			if list == nil {
				b.logger.Warn("task refers to unknown list", "task", rec.OriginID, "list", rec.ListOriginID)
			}
		}
		if list != nil {
			data["list"] = reconcile.Ref(list.ID)
		} else {
			data["list"] = reconcile.Null()
		}
		if _, ok := data["project"]; !ok && defaultProject != nil {
			data["project"] = reconcile.Ref(*defaultProject)
		}

		var changes reconcile.Changes
		if err := reconcile.Merge(&changes, task.MergeFields(), data); err != nil {
			return fmt.Errorf("task %s: %w", rec.OriginID, err)
		}

		state := rec.State
		if list != nil && list.TaskState != nil {
			state = *list.TaskState
		}
		if state != "" {
			changed, err := task.SetState(state)
			if err != nil {
				return fmt.Errorf("task %s: %w", rec.OriginID, err)
			}
			if changed {
				changes.Add("state")
			}
		}

		created := task.ID == 0
		if created || changes.Changed() {
			if err := b.store.SaveTask(ctx, task); err != nil {
				return fmt.Errorf("failed to save task %s: %w", rec.OriginID, err)
			}
		}

		assignmentsChanged, err := b.updateAssignments(ctx, task, created, rec.AssignedUsers, usersByOrigin, rep)
		if err != nil {
			return err
		}
		if assignmentsChanged {
			changes.Add("assignments")
		}

		if changes.Changed() {
			b.logger.Info(fmt.Sprintf("#%s: [%s] %s (changed: %s)",
				rec.OriginID, task.State, task.Name, strings.Join(changes.Fields(), ", ")),
				"workspace", ws.String())
			if err := b.recordChange(ctx, models.EntityTask, task.ID, task.OriginID, created, changes.Fields()); err != nil {
				return err
			}
		}
		tally(&rep.Tasks, created, &changes)
	}

	return syncher.Finish()
}

// updateAssignments applies the symmetric difference between the stored
// and the incoming assignees. Unknown assignee ids are logged and skipped.
func (b *base) updateAssignments(ctx context.Context, task *models.Task, created bool, assigned []string,
	usersByOrigin map[string]*models.DataSourceUser, rep *Report) (bool, error) {

	wanted := make(map[uint]bool, len(assigned))
	for _, originID := range assigned {
		u, ok := usersByOrigin[originID]
		if !ok {
			b.logger.Error("assigned user not found", "task", task.OriginID, "user", originID)
			rep.Unresolved++
			continue
		}
		wanted[u.ID] = true
	}

	current := make(map[uint]bool)
	if !created {
		ids, err := b.store.Assignees(ctx, task.ID)
		if err != nil {
			return false, fmt.Errorf("failed to load assignees of task %s: %w", task.OriginID, err)
		}
		for _, id := range ids {
			current[id] = true
		}
	}

	var added, removed []uint
	for id := range wanted {
		if !current[id] {
			added = append(added, id)
		}
	}
	for id := range current {
		if !wanted[id] {
			removed = append(removed, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	if err := b.store.AddAssignments(ctx, task.ID, added); err != nil {
		return false, fmt.Errorf("failed to assign users to task %s: %w", task.OriginID, err)
	}
	if err := b.store.RemoveAssignments(ctx, task.ID, removed); err != nil {
		return false, fmt.Errorf("failed to unassign users from task %s: %w", task.OriginID, err)
	}
	return len(added)+len(removed) > 0, nil
}

// saveUsers upserts data source users. Unseen users are only deactivated
// when enabled, on full passes, and if they hold no assignments.
func (b *base) saveUsers(ctx context.Context, records []UserRecord, partial bool, rep *Report) error {
	existing, err := b.store.Users(ctx, b.ds.ID)
	if err != nil {
		return fmt.Errorf("failed to load data source users: %w", err)
	}

	opts := reconcile.Options[*models.DataSourceUser]{
		SkipDelete: partial || !b.deactivateUnseenUsers,
		IsDeleted:  func(u *models.DataSourceUser) bool { return u.State == models.UserInactive },
		Delete: func(u *models.DataSourceUser) error {
			assigned, err := b.store.UserHasAssignments(ctx, u.ID)
			if err != nil || assigned {
				return err
			}
			if _, err := u.SetState(models.UserInactive); err != nil {
				return err
			}
			b.logger.Debug("marking data source user inactive", "user", u.String())
			if err := b.store.SaveUser(ctx, u); err != nil {
				return err
			}
			rep.Users.Closed++
			return b.recordChange(ctx, models.EntityUser, u.ID, u.OriginID, false, []string{"state"})
		},
	}
	syncher := reconcile.New(existing, func(u *models.DataSourceUser) string { return u.OriginID }, opts)

	for _, rec := range records {
		u, found := syncher.Get(rec.OriginID)
		if !found {
			u = &models.DataSourceUser{DataSourceID: b.ds.ID, OriginID: rec.OriginID, State: models.UserActive}
		}

		var changes reconcile.Changes
		if err := reconcile.Merge(&changes, u.MergeFields(), rec.Data); err != nil {
			return fmt.Errorf("user %s: %w", rec.OriginID, err)
		}
		changed, err := u.SetState(models.UserActive)
		if err != nil {
			return err
		}
		if changed {
			changes.Add("state")
		}

		created := u.ID == 0
		if created || changes.Changed() {
			if created {
				b.logger.Debug("creating new data source user", "user", u.String())
			}
			if err := b.store.SaveUser(ctx, u); err != nil {
				return fmt.Errorf("failed to save data source user %s: %w", rec.OriginID, err)
			}
		}
		tally(&rep.Users, created, &changes)
		syncher.Mark(u)
	}

	return syncher.Finish()
}

func (b *base) saveWebhook(ctx context.Context, originID string) error {
	if err := b.store.CreateWebhook(ctx, b.ds.ID, originID); err != nil {
		return fmt.Errorf("failed to record webhook %s: %w", originID, err)
	}
	return nil
}

// removeWebhook deletes the local record and calls remote inside one
// transaction, so a failed remote delete keeps the local record.
func (b *base) removeWebhook(ctx context.Context, originID string, remote func(ctx context.Context) error) error {
	return b.store.Transaction(ctx, func(ctx context.Context) error {
		if err := b.store.DeleteWebhook(ctx, b.ds.ID, originID); err != nil {
			return err
		}
		return remote(ctx)
	})
}

// distinctUsers keeps the first record of every origin id
func distinctUsers(users []UserRecord) []UserRecord {
	seen := make(map[string]bool, len(users))
	out := users[:0:0]
	for _, u := range users {
		if seen[u.OriginID] {
			continue
		}
		seen[u.OriginID] = true
		out = append(out, u)
	}
	return out
}
