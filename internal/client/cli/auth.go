package cli

import (
	"context"
	"fmt"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) credentials() (string, string, error) {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return "", "", err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", "", err
	}
	return userName, string(password), nil
}

// Register prompts for a username and password and creates the account on
// the server. It does not log in.
func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.credentials()
	if err != nil {
		return err
	}
	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Success! You can now log in.")
	return nil
}

// Login authenticates against the server and, on success, lets the engine
// start background sync. Writes made before logging in stay local-only.
func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.credentials()
	if err != nil {
		return err
	}
	if err := a.authService.Login(ctx, userName, password); err != nil {
		return err
	}
	a.engine.Refresh(ctx)
	fmt.Fprintf(a.out, "Logged in as %s\n", userName)
	return nil
}

// Logout forgets the access token and stops background sync. Local data
// and pending changes are kept.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.engine.Refresh(ctx)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
