package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"golang.org/x/term"

	"github.com/dimitrije/snapbook/internal/api"
	"github.com/dimitrije/snapbook/internal/channel"
	"github.com/dimitrije/snapbook/internal/config"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/internal/room"
	"github.com/dimitrije/snapbook/internal/scrapbook"
	"github.com/dimitrije/snapbook/internal/session"
	"github.com/dimitrije/snapbook/pkg/dto"
)

const joinTimeout = 10 * time.Second

func main() {
	usage := `Snapbook command line client.

The server is read from SNAPBOOK_API_URL (default http://localhost:8080).
Commands other than login and signup authenticate with SNAPBOOK_TOKEN, or
with SNAPBOOK_EMAIL and SNAPBOOK_PASSWORD. Logging flags such as -v=2 and
-logtostderr go before the command.

Usage:
    snapbook login [--email=<email>]
    snapbook signup --email=<email> --username=<username>
    snapbook list
    snapbook users <query>
    snapbook create <title>
    snapbook delete <id>
    snapbook show <id>
    snapbook watch <id>
    snapbook title <id> <title>
    snapbook add-text <id> <text>
    snapbook add-image <id> <file>
    snapbook rm-item <id> <item_id>
    snapbook collab add <id> <username>
    snapbook collab rm <id> <user_id>

Options:
    -h --help              Show this screen.
    --email=<email>        Account email.
    --username=<username>  Username for a new account.`

	flag.Parse()
	defer glog.Flush()

	opts, err := docopt.ParseArgs(usage, flag.Args(), "")
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %s\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newApp(ctx, cfg)
	defer app.close()

	if err := app.run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	session *session.Session
	client  *api.Client
	rooms   *room.Manager
	store   *scrapbook.Store
}

func newApp(ctx context.Context, cfg *config.Config) *app {
	sess := session.New(api.NewClient(cfg.APIURL, nil, api.WithTimeout(cfg.HTTPTimeout)))

	settings := channel.DefaultSettings()
	settings.ReconnectTimeout = cfg.ReconnectTimeout
	settings.PingInterval = cfg.PingInterval
	if settings.ReadTimeout <= settings.PingInterval {
		settings.ReadTimeout = settings.PingInterval * 5 / 2
	}
	rooms := room.NewManager(ctx, sess, room.SocketDialer(cfg.SocketURL, settings))
	client := api.NewClient(cfg.APIURL, sess,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithConnectionID(rooms.ConnectionID))

	return &app{
		cfg:     cfg,
		session: sess,
		client:  client,
		rooms:   rooms,
		store:   scrapbook.NewStore(sess, client, rooms),
	}
}

func (a *app) close() {
	a.store.Dispose()
	a.rooms.Close()
}

func (a *app) run(ctx context.Context, opts docopt.Opts) error {
	if login, _ := opts.Bool("login"); login {
		return a.login(ctx, opts)
	}
	if signup, _ := opts.Bool("signup"); signup {
		return a.signup(ctx, opts)
	}

	if err := a.authenticate(ctx); err != nil {
		return err
	}

	id, _ := opts.String("<id>")
	switch {
	case boolOpt(opts, "list"):
		return a.list(ctx)
	case boolOpt(opts, "users"):
		query, _ := opts.String("<query>")
		users, err := a.store.SearchUsers(ctx, query)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%s\t%s\n", u.ID, u.Username)
		}
		return nil
	case boolOpt(opts, "create"):
		title, _ := opts.String("<title>")
		sb, err := a.store.CreateScrapbook(ctx, title)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", sb.ID)
		return nil
	case boolOpt(opts, "delete"):
		return a.store.DeleteScrapbook(ctx, id)
	case boolOpt(opts, "show"):
		if err := a.store.Open(ctx, id); err != nil {
			return err
		}
		printSnapshot(a.store.Snapshot())
		return nil
	case boolOpt(opts, "watch"):
		return a.watch(ctx, id)
	}

	return a.mutate(ctx, id, opts)
}

func boolOpt(opts docopt.Opts, key string) bool {
	v, _ := opts.Bool(key)
	return v
}

func (a *app) login(ctx context.Context, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	if email == "" {
		email = a.cfg.Email
	}
	if email == "" {
		return errors.New("an email is required (--email or SNAPBOOK_EMAIL)")
	}

	password, err := a.password()
	if err != nil {
		return err
	}
	if _, err := a.session.SignIn(ctx, email, password); err != nil {
		return err
	}
	// print the token so it can be exported as SNAPBOOK_TOKEN
	fmt.Printf("%s\n", a.session.Token())
	return nil
}

func (a *app) signup(ctx context.Context, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	username, _ := opts.String("--username")
	password, err := a.password()
	if err != nil {
		return err
	}
	if _, err := a.session.SignUp(ctx, dto.RegisterRequest{Email: email, Password: password, Username: username}); err != nil {
		return err
	}
	fmt.Printf("%s\n", a.session.Token())
	return nil
}

func (a *app) password() (string, error) {
	if a.cfg.Password != "" {
		return a.cfg.Password, nil
	}
	fmt.Fprint(os.Stderr, "Enter password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintf(os.Stderr, "\n")
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

func (a *app) authenticate(ctx context.Context) error {
	if a.cfg.Token != "" {
		if err := a.session.Restore(ctx, a.cfg.Token, nil); err != nil {
			return err
		}
		if a.session.Expired() {
			return errors.New("SNAPBOOK_TOKEN has expired, run snapbook login")
		}
		return nil
	}
	if a.cfg.Email == "" {
		return errors.New("not signed in: set SNAPBOOK_TOKEN or SNAPBOOK_EMAIL")
	}
	password, err := a.password()
	if err != nil {
		return err
	}
	_, err = a.session.SignIn(ctx, a.cfg.Email, password)
	return err
}

func (a *app) list(ctx context.Context) error {
	list, err := a.store.ListScrapbooks(ctx)
	if err != nil {
		return err
	}
	userID := a.session.Identity().UserID()
	for _, sb := range list {
		role := "collaborator"
		if sb.IsOwner(userID) {
			role = "owner"
		}
		fmt.Printf("%s\t%s\t%s\t%d items\n", sb.ID, sb.Title, role, len(sb.Items))
	}
	return nil
}

// open opens id and waits until the room join has gone out, so that the
// relays of a mutation reach the other members.
func (a *app) open(ctx context.Context, id string) error {
	if err := a.store.Open(ctx, id); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !a.rooms.Joined() {
		select {
		case <-waitCtx.Done():
			glog.Warningf("[cli]live channel not joined, peers will see this change on reload")
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (a *app) mutate(ctx context.Context, id string, opts docopt.Opts) error {
	if err := a.open(ctx, id); err != nil {
		return err
	}
	defer a.store.Close()

	switch {
	case boolOpt(opts, "title"):
		title, _ := opts.String("<title>")
		return a.store.SetTitle(ctx, title)
	case boolOpt(opts, "add-text"):
		text, _ := opts.String("<text>")
		item, err := a.store.AddItem(ctx, models.Item{Type: models.ItemTypeText, Content: text})
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", item.ID)
		return nil
	case boolOpt(opts, "add-image"):
		path, _ := opts.String("<file>")
		uri, err := a.client.UploadFile(ctx, path)
		if err != nil {
			return err
		}
		item, err := a.store.AddItem(ctx, models.Item{Type: models.ItemTypeImage, Content: uri})
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", item.ID, uri)
		return nil
	case boolOpt(opts, "rm-item"):
		itemID, _ := opts.String("<item_id>")
		return a.store.RemoveItem(ctx, itemID)
	case boolOpt(opts, "add"):
		username, _ := opts.String("<username>")
		user, err := a.store.AddCollaborator(ctx, username)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", user.ID, user.Username)
		return nil
	case boolOpt(opts, "rm"):
		userID, _ := opts.String("<user_id>")
		return a.store.RemoveCollaborator(ctx, userID)
	}
	return errors.New("unknown command")
}

func (a *app) watch(ctx context.Context, id string) error {
	if err := a.store.Open(ctx, id); err != nil {
		return err
	}
	defer a.store.Close()

	deleted := make(chan struct{}, 1)
	unsubDeleted := a.store.OnDeleted(func(string) {
		select {
		case deleted <- struct{}{}:
		default:
		}
	})
	defer unsubDeleted()

	printSnapshot(a.store.Snapshot())
	unsub := a.store.Subscribe(func(snap scrapbook.Snapshot) {
		if snap.Scrapbook != nil {
			fmt.Println(strings.Repeat("-", 40))
			printSnapshot(snap)
		}
	})
	defer unsub()

	select {
	case <-ctx.Done():
		return nil
	case <-deleted:
		return errors.New("scrapbook was deleted")
	}
}

func printSnapshot(snap scrapbook.Snapshot) {
	sb := snap.Scrapbook
	if sb == nil {
		return
	}
	fmt.Printf("%s (%s)\n", sb.Title, sb.ID)
	fmt.Printf("owner: %s\n", sb.Owner.Username)
	for _, c := range snap.Collaborators {
		fmt.Printf("collaborator: %s %s\n", c.ID, c.Username)
	}
	for _, u := range snap.ActiveUsers {
		fmt.Printf("here: %s\n", u.Username)
	}
	for _, item := range sb.Items {
		fmt.Printf("  [%s] %s %s\n", item.Type, item.ID, item.Content)
	}
	for i, e := range snap.Timeline {
		if i == 5 {
			break
		}
		fmt.Printf("  %s %s %s %s %s\n", e.Timestamp.Format(time.RFC3339), e.User.Username, e.Action, e.ItemType, e.Details)
	}
}
