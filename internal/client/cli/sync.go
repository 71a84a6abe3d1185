package cli

import (
	"context"
	"fmt"
)

// Sync runs a sync now, or with "on"/"off" switches background sync.
func (a *App) Sync(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "on":
			a.engine.SetSyncEnabled(ctx, true)
			fmt.Fprintln(a.out, "Background sync enabled")
			return nil
		case "off":
			a.engine.SetSyncEnabled(ctx, false)
			fmt.Fprintln(a.out, "Background sync disabled, changes stay on this device")
			return nil
		default:
			return errUsage
		}
	}

	// the outcome is reported through the notifier
	_, err := a.engine.SyncNow(ctx)
	return err
}

// Retry runs the action attached to the last failure notification.
func (a *App) Retry(ctx context.Context) error {
	act := a.actions.TakeAction()
	if act == nil {
		fmt.Fprintln(a.out, "Nothing to retry")
		return nil
	}
	act.Run(ctx)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	pending, err := a.engine.Pending(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "connectivity: %s\n", a.engine.ConnectivityStatus())
	fmt.Fprintf(a.out, "background sync: %v\n", a.engine.SyncEnabled())
	fmt.Fprintf(a.out, "pending: papers %d/%d/%d, collections %d/%d/%d, annotations %d/%d/%d (created/updated/deleted)\n",
		len(pending.Papers.Created), len(pending.Papers.Updated), len(pending.Papers.Deleted),
		len(pending.Collections.Created), len(pending.Collections.Updated), len(pending.Collections.Deleted),
		len(pending.Annotations.Created), len(pending.Annotations.Updated), len(pending.Annotations.Deleted))

	if !a.isLoggedIn(ctx) {
		fmt.Fprintln(a.out, "server: not logged in")
		return nil
	}
	st, err := a.engine.RemoteStatus(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "server: unreachable (%v)\n", err)
		return nil
	}
	last := "never"
	if st.LastSyncedAt != nil {
		last = st.LastSyncedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(a.out, "server: papers %d, collections %d, annotations %d, last sync %s\n",
		st.Counts.Papers, st.Counts.Collections, st.Counts.Annotations, last)
	return nil
}

