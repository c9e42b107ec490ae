// Command studyquest is the local CLI over the study data layer: it
// initializes the configured storage engine, runs pending migrations and
// exposes maintenance actions (status, backup, export/import of the full
// store or a single plan, engine switching, session sync and cleanup).
package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	hackpados "github.com/hack-pad/hackpadfs/os"
	"go.uber.org/zap"

	"github.com/studyquest/studyquest/internal/backup"
	"github.com/studyquest/studyquest/internal/config"
	"github.com/studyquest/studyquest/internal/docstore"
	"github.com/studyquest/studyquest/internal/engine"
	"github.com/studyquest/studyquest/internal/logger"
	"github.com/studyquest/studyquest/internal/store"
	"github.com/studyquest/studyquest/internal/study"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, flags.Args(), log); err != nil {
		log.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, args []string, log *zap.SugaredLogger) error {
	if err := cfg.MustHaveDataDir(); err != nil {
		return err
	}

	rel, err := store.Open(cfg.DBPath, log)
	if err != nil {
		return err
	}

	osFS := hackpados.NewFS()
	dataDir, err := fsPath(cfg.DataDir)
	if err != nil {
		return err
	}
	shadow, err := backup.NewShadowStore(osFS, path.Join(dataDir, "backup"))
	if err != nil {
		return err
	}

	mgr := engine.NewManager(rel, shadow, osFS, path.Join(dataDir, cfg.DocFile), cfg.FlushDelay, log)
	svc := study.NewService(rel, mgr, backup.NewManager(shadow, log), log)
	if err := svc.Initialize(); err != nil {
		return err
	}
	defer svc.Close()

	command := "status"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "status":
		return printStatus(svc)
	case "plan":
		return printPlan(svc)
	case "sync":
		count, err := svc.ForceSyncBackupSessions()
		if err != nil {
			return err
		}
		fmt.Printf("synced %d backup sessions\n", count)
		return nil
	case "cleanup":
		removed, err := svc.CleanupSessions()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d corrupted or duplicate sessions\n", removed)
		return nil
	case "backup":
		if len(args) < 2 {
			return fmt.Errorf("usage: studyquest backup <dest>")
		}
		return backupDatabase(cfg.DBPath, args[1])
	case "export":
		if len(args) < 2 {
			return fmt.Errorf("usage: studyquest export <dest.json>")
		}
		data, err := svc.ExportDocumentStore()
		if err != nil {
			return err
		}
		return os.WriteFile(args[1], data, 0644)
	case "import":
		if len(args) < 2 {
			return fmt.Errorf("usage: studyquest import <src.json> [merge|replace]")
		}
		mode := docstore.ImportMerge
		if len(args) > 2 && args[2] == "replace" {
			mode = docstore.ImportReplace
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		return svc.ImportDocumentStore(data, mode)
	case "export-plan":
		if len(args) < 3 {
			return fmt.Errorf("usage: studyquest export-plan <plan-id> <dest.json>")
		}
		data, err := svc.ExportPlan(args[1])
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("plan %s not found", args[1])
		}
		return os.WriteFile(args[2], data, 0644)
	case "import-plan":
		if len(args) < 2 {
			return fmt.Errorf("usage: studyquest import-plan <src.json>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		id, err := svc.ImportPlan(data)
		if err != nil {
			return err
		}
		fmt.Printf("plan imported as %s\n", id)
		return nil
	case "engine":
		if len(args) < 2 {
			fmt.Printf("active engine: %s\n", svc.Engine())
			return nil
		}
		if err := svc.SwitchEngine(engine.Engine(args[1])); err != nil {
			return err
		}
		fmt.Printf("engine switched to %s\n", svc.Engine())
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printStatus(svc *study.Service) error {
	fmt.Printf("engine: %s\n", svc.Engine())

	plans, err := svc.Plans()
	if err != nil {
		return err
	}
	fmt.Printf("plans: %d\n", len(plans))

	sessions, err := svc.Sessions()
	if err != nil {
		return err
	}
	fmt.Printf("sessions: %d\n", len(sessions))

	report := svc.ValidatePersistence()
	fmt.Printf("backup sessions: %d, corrupted: %d", report.BackupSessions, report.CorruptedSessions)
	if report.LastSyncTime != "" {
		fmt.Printf(", last sync: %s", report.LastSyncTime)
	}
	fmt.Println()
	return nil
}

func printPlan(svc *study.Service) error {
	plan, err := svc.ActivePlan()
	if err != nil {
		return err
	}
	if plan == nil {
		fmt.Println("no active plan")
		return nil
	}
	fmt.Printf("%s (%s): %d subjects, %.1f hours\n",
		plan.Name, plan.ID, len(plan.Subjects), plan.TotalHours)
	for _, subject := range plan.Subjects {
		fmt.Printf("  - %s (%d topics)\n", subject.Name, len(subject.Topics))
	}
	return nil
}

// backupDatabase copies the relational database file wholesale, the
// full-database backup path.
func backupDatabase(dbPath, dest string) error {
	if dbPath == ":memory:" {
		return fmt.Errorf("cannot back up an in-memory database")
	}
	data, err := os.ReadFile(dbPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}
	fmt.Printf("database backed up to %s\n", dest)
	return nil
}

// fsPath converts an OS path to the rooted form hackpadfs/os expects.
func fsPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(filepath.ToSlash(abs), "/"), nil
}
