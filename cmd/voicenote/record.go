package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yegors/voicenote/internal/apperrors"
	"github.com/yegors/voicenote/internal/capture"
	"github.com/yegors/voicenote/internal/capture/filedevice"
	"github.com/yegors/voicenote/internal/storage/sqlite"
	"github.com/yegors/voicenote/pkg/logger"
)

var (
	recordFile        string
	recordSource      string
	recordDuration    time.Duration
	recordDraftsDB    string
	recordShareSystem bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice note from an audio file and transcribe it",
	Long: `Replays an encoded audio file as a capture source, sends the recording
to the relay and prints the transcript. Recording stops when the file is
exhausted, when --duration elapses or on Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context())
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordFile, "file", "", "encoded audio file to replay (required)")
	recordCmd.Flags().StringVar(&recordSource, "source", "microphone", "capture source: microphone or system")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop after this long (0 waits for the end of the file)")
	recordCmd.Flags().StringVar(&recordDraftsDB, "drafts-db", "", "SQLite database to store the transcript as a note draft")
	recordCmd.Flags().BoolVar(&recordShareSystem, "share-audio", true, "include an audio track when capturing the system source")
	recordCmd.MarkFlagRequired("file")
}

func runRecord(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	source, err := capture.ParseAudioSource(recordSource)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Transcripts go to stdout, logs to stderr
	log, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, drafts, err := openDrafts(recordDraftsDB, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	devices := filedevice.New(recordFile, filedevice.Options{
		DisplaySupported: true,
		ShareSystemAudio: recordShareSystem,
	}, log)

	relayClient := capture.NewHTTPRelayClient(cfg.Capture.RelayURL, cfg.Capture.RelayAPIKey,
		time.Duration(cfg.Capture.RelayTimeoutSeconds)*time.Second, log)

	notifier := capture.NotifierFunc(func(n capture.Notification) {
		fields := []logger.Field{logger.String("title", n.Title), logger.String("message", n.Message)}
		switch n.Level {
		case capture.LevelError:
			log.Error("Notification", append(fields, logger.String("kind", string(n.Kind)))...)
		case capture.LevelWarning:
			log.Warn("Notification", fields...)
		default:
			log.Info("Notification", fields...)
		}
	})

	controller := capture.NewController(devices, devices.NewRecorder, relayClient,
		func(text string) { fmt.Println(text) },
		notifier, capture.OptionsFromConfig(cfg.Capture), log)
	defer controller.Teardown()

	events, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	stored := make(chan struct{})
	go storeDrafts(events, drafts, log, stored)

	if err := controller.Start(ctx, source); err != nil {
		return errors.New(apperrors.UserMessage(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-devices.Exhausted():
		log.Debug("Audio file exhausted")
	case <-timeout:
		log.Debug("Recording duration reached")
	case sig := <-sigChan:
		log.Info("Stopping recording", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	_, err = controller.Stop(context.Background())
	controller.Teardown()
	<-stored

	if err != nil {
		var typed *apperrors.Error
		if errors.As(err, &typed) && typed.Soft() {
			return nil
		}
		return errors.New(apperrors.UserMessage(err))
	}
	return nil
}

// storeDrafts saves every transcript as a note draft until events closes
func storeDrafts(events <-chan capture.Event, drafts *sqlite.DraftStorage, log *logger.Logger, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		if ev.Type != capture.EventTranscribed || drafts == nil {
			continue
		}
		_, err := drafts.StoreDraft(&sqlite.DraftRecord{
			SessionID: ev.SessionID,
			Source:    ev.Source.String(),
			Content:   ev.Text,
		})
		if err != nil {
			log.Warn("Failed to store note draft", logger.Error(err))
		}
	}
}

// openDrafts opens draft storage at path, or returns nil storage when path is empty
func openDrafts(path string, log *logger.Logger) (*sql.DB, *sqlite.DraftStorage, error) {
	if path == "" {
		return nil, nil, nil
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	drafts, err := sqlite.NewDraftStorage(db, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, drafts, nil
}
