package owuidb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/mittwald/owui-bootstrap/internal/chatparams"
	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// SeederConfig controls a seeding run.
type SeederConfig struct {
	DBPath                string
	MarkerPath            string
	Mode                  Mode
	ReapplyOnStart        bool
	MarkerVersion         string
	SyncChatsOnEveryStart bool
	PollInterval          time.Duration
	MaxWait               time.Duration // <= 0 waits forever
	DBWaitTimeout         time.Duration
	Desired               chatparams.Params
}

// Outcome describes how a run ended.
type Outcome string

const (
	OutcomeDone             Outcome = "done"
	OutcomeNothingToDo      Outcome = "nothing_to_do"
	OutcomeDBNotReady       Outcome = "db_not_ready"
	OutcomeGaveUp           Outcome = "gave_up"
	OutcomeNoSettingsColumn Outcome = "no_settings_column"
)

// Report summarises a run.
type Report struct {
	Outcome      Outcome
	FullSync     bool
	SyncedChats  bool
	UsersUpdated int
	ChatsUpdated int
	Attempts     int
}

// Seeder writes default chat params into existing users and chats once per
// change of defaults.
type Seeder struct {
	cfg SeederConfig
	now func() time.Time
}

// NewSeeder validates cfg and fills defaults.
func NewSeeder(cfg SeederConfig) *Seeder {
	if cfg.Mode == "" {
		cfg.Mode = ModeStale
	}
	if cfg.MarkerVersion == "" {
		cfg.MarkerVersion = DefaultMarkerVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.DBWaitTimeout <= 0 {
		cfg.DBWaitTimeout = 600 * time.Second
	}
	return &Seeder{cfg: cfg, now: time.Now}
}

// errRetry marks an attempt that found the database not ready yet.
var errRetry = errors.New("retry")

// Run seeds the database, retrying until users exist or MaxWait elapses.
func (s *Seeder) Run(ctx context.Context) (Report, error) {
	cfg := s.cfg
	var report Report
	if len(cfg.Desired) == 0 {
		L_info("no desired defaults; nothing to do")
		report.Outcome = OutcomeNothingToDo
		return report, nil
	}

	hash := Fingerprint(cfg.Desired)
	marker, state := ReadMarker(cfg.MarkerPath)
	report.FullSync = NeedsFullSync(marker, state, cfg.MarkerVersion, hash)

	switch {
	case cfg.ReapplyOnStart:
		report.FullSync = true
		L_info("OWUI_BOOTSTRAP_REAPPLY_ON_START=true; forcing full bootstrap sync")
	case !report.FullSync:
		L_info("marker is current; running safety sync for users", "mode", cfg.Mode, "sync_chats", cfg.SyncChatsOnEveryStart)
	case state == MarkerLegacy:
		L_info("legacy marker detected; running bootstrap migration sync")
	case state == MarkerMissing:
		L_info("no marker found; running initial bootstrap sync")
	case marker.Version != cfg.MarkerVersion:
		L_info("marker version mismatch; running sync", "from", marker.Version, "to", cfg.MarkerVersion)
	default:
		L_info("desired defaults changed since last marker; running sync")
	}

	L_info("waiting for DB", "path", cfg.DBPath)
	if err := WaitForDB(ctx, cfg.DBPath, cfg.DBWaitTimeout, time.Second); err != nil {
		if errors.Is(err, ErrDBTimeout) {
			L_warn("DB not ready; skipping bootstrap attempt", "timeout", cfg.DBWaitTimeout, "path", cfg.DBPath)
			report.Outcome = OutcomeDBNotReady
			return report, nil
		}
		return report, err
	}

	start := s.now()
	for {
		report.Attempts++
		elapsed := s.now().Sub(start)
		if cfg.MaxWait > 0 && elapsed > cfg.MaxWait {
			L_warn("gave up waiting for writable DB/users; no changes applied", "elapsed", elapsed.Round(time.Second))
			report.Outcome = OutcomeGaveUp
			return report, nil
		}

		err := s.attempt(ctx, hash, &report)
		var sqliteErr sqlite3.Error
		switch {
		case err == nil:
			return report, nil
		case errors.Is(err, errRetry):
		case errors.As(err, &sqliteErr):
			L_warn("SQLite error; retrying", "attempt", report.Attempts, "error", err)
		default:
			return report, err
		}

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}

func (s *Seeder) attempt(ctx context.Context, hash string, report *Report) error {
	cfg := s.cfg
	db, err := Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	usersTable, err := FindUsersTable(ctx, db)
	if err != nil {
		return err
	}
	if usersTable == "" {
		L_info("could not find users table yet; retrying")
		return errRetry
	}
	count, err := UserCount(ctx, db, usersTable)
	if err != nil {
		return err
	}
	if count < 1 {
		L_trace("no users yet", "table", usersTable)
		return errRetry
	}
	settingsCol, err := FindSettingsColumn(ctx, db, usersTable)
	if err != nil {
		return err
	}
	if settingsCol == "" {
		L_warn("found users table but no obvious settings column; aborting (no changes)", "table", usersTable)
		report.Outcome = OutcomeNoSettingsColumn
		return nil
	}
	idCol, err := FindIDColumn(ctx, db, usersTable)
	if err != nil {
		return err
	}

	runChats := report.FullSync || cfg.SyncChatsOnEveryStart
	var chatTable, chatIDCol, chatPayloadCol string
	if runChats {
		if chatTable, err = FindChatTable(ctx, db); err != nil {
			return err
		}
		if chatTable != "" {
			if chatPayloadCol, err = FindChatPayloadColumn(ctx, db, chatTable); err != nil {
				return err
			}
			if chatPayloadCol != "" {
				if chatIDCol, err = FindIDColumn(ctx, db, chatTable); err != nil {
					return err
				}
			}
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nUsers, err := UpdateUserSettings(ctx, tx, usersTable, idCol, settingsCol, UserSync{
		Desired: cfg.Desired,
		Mode:    cfg.Mode,
		Version: cfg.MarkerVersion,
		Hash:    hash,
		Now:     s.now().Unix(),
	})
	if err != nil {
		return err
	}
	nChats := 0
	if chatPayloadCol != "" && chatIDCol != "" {
		nChats, err = UpdateChatParams(ctx, tx, chatTable, chatIDCol, chatPayloadCol, ChatSync{
			Desired: cfg.Desired,
			Mode:    cfg.Mode,
		})
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	report.Outcome = OutcomeDone
	report.SyncedChats = runChats
	report.UsersUpdated = nUsers
	report.ChatsUpdated = nChats

	if err := WriteMarker(cfg.MarkerPath, Marker{
		Version:        cfg.MarkerVersion,
		DesiredHash:    hash,
		OverwriteMode:  cfg.Mode,
		SyncChats:      runChats,
		UpdatedAtEpoch: s.now().Unix(),
		UsersUpdated:   nUsers,
		ChatsUpdated:   nChats,
	}); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	L_info(fmt.Sprintf("injected defaults into %d user(s) and %d chat(s)", nUsers, nChats),
		"mode", cfg.Mode, "full_sync", report.FullSync)
	return nil
}

// DesiredDefaults resolves the defaults to seed for the discovered default
// chat model.
func DesiredDefaults(r *chatparams.Resolver, discoveryCachePath string) chatparams.Resolution {
	model := chatparams.LoadDefaultChatModel(discoveryCachePath)
	res := r.Defaults(model)
	if len(res.Generation) > 0 {
		L_info("applied Hugging Face generation_config defaults", "model", model)
	}
	if len(res.Hyperparameters) > 0 {
		L_info("applied Hugging Face hyperparameters", "model", model)
	}
	if model == "" {
		L_info("no discovered default chat model found; using fallback chat defaults profile")
	} else {
		L_info("using chat defaults profile", "profile", res.ProfileName(), "model", model)
	}
	return res
}
