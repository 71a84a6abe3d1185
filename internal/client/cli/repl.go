package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn(ctx context.Context) bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	Add(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Update(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Find(ctx context.Context, args []string) error
	PDF(ctx context.Context, args []string) error

	Sync(ctx context.Context, args []string) error
	Retry(ctx context.Context) error
	Status(ctx context.Context) error
}

const helpText = `Commands:
  add <entity> [field=value ...]      create a record, prompting for required fields if none given
  list <entity>                       list records
  show <entity> <id>                  show one record
  update <entity> <id> field=value... change fields
  delete <entity> <id>                delete a record
  find <doi|arxiv id>                 look up a paper by external id
  pdf <paper id>                      print a download link for the PDF
  status                              local, pending and server state
  sync [on|off]                       sync now, or switch background sync
  retry                               repeat the last failed action
  register | login | logout
  exit | quit
Entities: papers, collections, annotations`

// runREPL starts a simple read-eval-print loop for the papershelf client.
//
// It reads a line from r, parses the first token as the command, and
// dispatches to methods on 'a'. Errors from handlers are printed and the
// loop goes on. The loop exits on EOF or when the user types "exit" or
// "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("papershelf %s > ", statusFn()))
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
			if !a.isLoggedIn(ctx) {
				printlnFn("Not logged in: changes stay on this device until you log in.")
			}
		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "add":
			cmdErr = a.Add(ctx, args)
		case "l", "list":
			cmdErr = a.List(ctx, args)
		case "show":
			cmdErr = a.Show(ctx, args)
		case "update":
			cmdErr = a.Update(ctx, args)
		case "delete":
			cmdErr = a.Delete(ctx, args)
		case "find":
			cmdErr = a.Find(ctx, args)
		case "pdf":
			cmdErr = a.PDF(ctx, args)
		case "sync":
			cmdErr = a.Sync(ctx, args)
		case "retry":
			cmdErr = a.Retry(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
	}
}
