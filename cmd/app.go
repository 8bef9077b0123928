package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"jobdeck/internal/api"
	"jobdeck/internal/importer"
	"jobdeck/internal/jobs"
	"jobdeck/internal/model"
	"jobdeck/internal/notifier"
	"jobdeck/internal/search"
	"jobdeck/internal/session"
	"jobdeck/internal/storage"
)

// AppConfig 应用配置。
type AppConfig struct {
	API      api.Config     `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Jobs     jobs.Config    `yaml:"jobs"`
	Search   search.Config  `yaml:"search"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// appDeps 汇集命令执行需要的各层依赖。
type appDeps struct {
	sessions *session.Store
	jobs     *jobs.Store
	search   *search.Service
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Printf("load config error: %v", err)
		return
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		log.Printf("init error: %v", err)
		return
	}
	defer cleanup()

	ctx := context.Background()
	deps.sessions.Restore(ctx)

	if err := runCommand(ctx, deps, os.Args[1:], os.Stdout); err != nil {
		log.Printf("command error: %v", err)
	}
}

func loadConfig() (AppConfig, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// buildDeps 按配置装配存储、客户端与各 store，返回清理函数。
func buildDeps(cfg AppConfig) (appDeps, func(), error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "jobdeck.db"
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return appDeps{}, nil, fmt.Errorf("init store: %w", err)
	}

	client := api.NewClient(cfg.API, nil)
	hub := notifier.NewHub()
	hub.Subscribe(notifier.NewLogListener(nil))

	sessions := session.NewStore(client, store, client, hub, nil)
	jobStore := jobs.NewStore(client, store, hub, cfg.Jobs, nil)
	hub.Subscribe(jobStore.HandleEvent)
	searchSvc := search.NewService(client, cfg.Search, nil)

	cleanup := func() {
		_ = store.Close()
	}
	return appDeps{sessions: sessions, jobs: jobStore, search: searchSvc}, cleanup, nil
}

func runCommand(ctx context.Context, deps appDeps, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		if len(rest) != 2 {
			return fmt.Errorf("usage: login <email> <password>")
		}
		user, err := deps.sessions.Login(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "welcome back, %s\n", user.Name)
		return nil

	case "register":
		if len(rest) != 3 {
			return fmt.Errorf("usage: register <name> <email> <password>")
		}
		user, err := deps.sessions.Register(ctx, rest[0], rest[1], rest[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "account created for %s\n", user.Email)
		return nil

	case "logout":
		deps.sessions.Logout(ctx)
		fmt.Fprintln(out, "logged out")
		return nil

	case "profile":
		return runProfile(ctx, deps, rest, out)

	case "list":
		return runList(deps, out)

	case "board":
		term := strings.Join(rest, " ")
		return runBoard(deps, term, out)

	case "stats":
		return runStats(deps, out)

	case "add":
		return runAdd(ctx, deps, rest, out)

	case "update":
		return runUpdate(ctx, deps, rest, out)

	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: delete <id>")
		}
		if err := deps.jobs.Delete(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintln(out, "job deleted")
		return nil

	case "search":
		if len(rest) == 0 {
			return fmt.Errorf("usage: search <query>")
		}
		return runSearch(ctx, deps, strings.Join(rest, " "), out)

	case "recommend":
		return runRecommend(ctx, deps, out)

	case "import":
		if len(rest) < 2 {
			return fmt.Errorf("usage: import <index> <query>")
		}
		index, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("bad index %q", rest[0])
		}
		return runImport(ctx, deps, index, strings.Join(rest[1:], " "), out)

	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runProfile(ctx context.Context, deps appDeps, rest []string, out io.Writer) error {
	switch len(rest) {
	case 0:
		sess, ok := deps.sessions.Current()
		if !ok {
			return fmt.Errorf("not signed in")
		}
		fmt.Fprintf(out, "%s <%s>\n", sess.User.Name, sess.User.Email)
		if !sess.User.CreatedAt.IsZero() {
			fmt.Fprintf(out, "member since %s\n", sess.User.CreatedAt.Format("2006-01-02"))
		}
		return nil
	case 2:
		user, err := deps.sessions.UpdateProfile(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "profile updated: %s <%s>\n", user.Name, user.Email)
		return nil
	default:
		return fmt.Errorf("usage: profile [<name> <email>]")
	}
}

func runList(deps appDeps, out io.Writer) error {
	records := deps.jobs.Jobs()
	if len(records) == 0 {
		fmt.Fprintln(out, "no jobs tracked")
		return nil
	}
	for _, job := range records {
		fmt.Fprintf(out, "%s\t%s\t%s\t[%s/%s]\n", job.ID, job.Company, job.Position, job.Status, job.Priority)
	}
	return nil
}

func runBoard(deps appDeps, term string, out io.Writer) error {
	for _, col := range model.BoardColumns {
		entries := deps.jobs.Filter(col.Status, term)
		fmt.Fprintf(out, "== %s (%d)\n", col.Title, len(entries))
		for _, job := range entries {
			fmt.Fprintf(out, "  %s — %s (%s)\n", job.Company, job.Position, job.ID)
		}
	}
	return nil
}

func runStats(deps appDeps, out io.Writer) error {
	snapshot, ok := deps.jobs.Analytics()
	if !ok {
		fmt.Fprintln(out, "no analytics yet")
		return nil
	}
	fmt.Fprintf(out, "total: %d\n", snapshot.Total)
	for _, status := range model.Statuses {
		if n := snapshot.ByStatus[status]; n > 0 {
			fmt.Fprintf(out, "  %s: %d\n", status, n)
		}
	}
	for _, priority := range model.Priorities {
		if n := snapshot.ByPriority[priority]; n > 0 {
			fmt.Fprintf(out, "  %s priority: %d\n", priority, n)
		}
	}
	for _, activity := range snapshot.RecentActivity {
		fmt.Fprintf(out, "  %s — %s → %s (%s)\n", activity.Company, activity.Position, activity.Status, activity.Date.Format("2006-01-02"))
	}
	return nil
}

func runAdd(ctx context.Context, deps appDeps, rest []string, out io.Writer) error {
	if len(rest) < 2 {
		return fmt.Errorf("usage: add <company> <position> [field=value ...]")
	}
	draft := model.Job{
		Company:  rest[0],
		Position: rest[1],
		Status:   model.StatusWishlist,
		Priority: model.PriorityMedium,
		JobType:  model.JobTypeFullTime,
	}
	if err := applyFields(&draft, rest[2:]); err != nil {
		return err
	}
	created, err := deps.jobs.Create(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "job added: %s\n", created.ID)
	return nil
}

func runUpdate(ctx context.Context, deps appDeps, rest []string, out io.Writer) error {
	if len(rest) < 2 {
		return fmt.Errorf("usage: update <id> <field=value ...>")
	}
	id := rest[0]

	var record model.Job
	found := false
	for _, job := range deps.jobs.Jobs() {
		if job.ID == id {
			record = job
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("job %s not tracked locally, run list first", id)
	}

	// 更新是整条记录覆盖：在当前记录上改字段后完整提交。
	if err := applyFields(&record, rest[1:]); err != nil {
		return err
	}
	updated, err := deps.jobs.Update(ctx, id, record)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "job updated: %s is now %s\n", updated.ID, updated.Status)
	return nil
}

func runSearch(ctx context.Context, deps appDeps, query string, out io.Writer) error {
	listings, count, err := deps.search.Search(ctx, query)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "found %d jobs\n", count)
	for i, listing := range listings {
		fmt.Fprintf(out, "%2d. %s — %s (%s)\n", i, listing.Title, listing.Company, listing.Source)
	}
	return nil
}

func runRecommend(ctx context.Context, deps appDeps, out io.Writer) error {
	listings, err := deps.search.Recommendations(ctx)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Fprintln(out, "no recommendations yet")
		return nil
	}
	for _, listing := range listings {
		fmt.Fprintf(out, "%s — %s (%s)\n", listing.Title, listing.Company, listing.Source)
	}
	return nil
}

func runImport(ctx context.Context, deps appDeps, index int, query string, out io.Writer) error {
	listings, _, err := deps.search.Search(ctx, query)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(listings) {
		return fmt.Errorf("index %d out of range, %d listings", index, len(listings))
	}
	created, err := deps.jobs.Create(ctx, importer.Draft(listings[index]))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %q as %s\n", created.Position, created.ID)
	return nil
}

// applyFields 解析 field=value 形式的覆盖项。
func applyFields(job *model.Job, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("bad field %q, want field=value", pair)
		}
		switch key {
		case "status":
			job.Status = model.Status(value)
		case "priority":
			job.Priority = model.Priority(value)
		case "type":
			job.JobType = model.JobType(value)
		case "company":
			job.Company = value
		case "position":
			job.Position = value
		case "location":
			job.Location = value
		case "url":
			job.JobURL = value
		case "notes":
			job.Notes = value
		default:
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `usage: jobdeck <command>

  login <email> <password>
  register <name> <email> <password>
  logout
  profile [<name> <email>]
  list
  board [term]
  stats
  add <company> <position> [field=value ...]
  update <id> <field=value ...>
  delete <id>
  search <query>
  recommend
  import <index> <query>`)
}
