// Command chirpling-call places a realtime voice call against a bot and
// renders the live transcript. Audio capture and playback stay with the
// device firmware; the command drives the session, the press-to-talk
// gesture, and optional archival of finished calls.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chirpling-ai/chirpling/internal/dotenv"
	"github.com/chirpling-ai/chirpling/pkg/call"
	"github.com/chirpling-ai/chirpling/pkg/history"
	"github.com/chirpling-ai/chirpling/pkg/live"
)

const (
	defaultBaseURL = "https://api.coze.cn"
	defaultTimeout = 15 * time.Second
)

type callConfig struct {
	BaseURL       string
	AccessToken   string
	BotID         string
	VoiceID       string
	TurnDetection string
	PlayPrologue  bool
	ConnectWait   time.Duration
	ArchiveDSN    string
}

func parseCallConfig(args []string, getenv func(string) string) (callConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := callConfig{}
	fs := flag.NewFlagSet("chirpling-call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", envOr(getenv, "CHIRPLING_BASE_URL", defaultBaseURL), "platform base URL (or CHIRPLING_BASE_URL)")
	fs.StringVar(&cfg.AccessToken, "access-token", strings.TrimSpace(getenv("CHIRPLING_ACCESS_TOKEN")), "personal access token (or CHIRPLING_ACCESS_TOKEN)")
	fs.StringVar(&cfg.BotID, "bot", strings.TrimSpace(getenv("CHIRPLING_BOT_ID")), "bot id to call (or CHIRPLING_BOT_ID)")
	fs.StringVar(&cfg.VoiceID, "voice", strings.TrimSpace(getenv("CHIRPLING_VOICE_ID")), "voice id for playback")
	fs.StringVar(&cfg.TurnDetection, "turn-detection", "server_vad", "turn detection mode: server_vad or client_interrupt")
	fs.BoolVar(&cfg.PlayPrologue, "prologue", true, "play the bot's greeting on connect")
	fs.DurationVar(&cfg.ConnectWait, "connect-wait", defaultTimeout, "connect timeout")
	fs.StringVar(&cfg.ArchiveDSN, "archive-dsn", strings.TrimSpace(getenv("CHIRPLING_ARCHIVE_DSN")), "optional Postgres DSN for call archival (or CHIRPLING_ARCHIVE_DSN)")

	if err := fs.Parse(args); err != nil {
		return callConfig{}, err
	}
	if err := validateCallConfig(cfg); err != nil {
		return callConfig{}, err
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

func validateCallConfig(cfg callConfig) error {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return errors.New("base-url must not be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	if parsed.User != nil {
		return errors.New("base-url must not include credentials")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return errors.New("access-token is required (set CHIRPLING_ACCESS_TOKEN)")
	}
	if strings.TrimSpace(cfg.BotID) == "" {
		return errors.New("bot is required (set CHIRPLING_BOT_ID)")
	}
	switch cfg.TurnDetection {
	case "server_vad", "client_interrupt":
	default:
		return fmt.Errorf("turn-detection must be server_vad or client_interrupt, got %q", cfg.TurnDetection)
	}
	if cfg.ConnectWait <= 0 {
		return errors.New("connect-wait must be > 0")
	}
	return nil
}

// archiver is the slice of the history store the CLI needs; nil disables
// archival.
type archiver interface {
	Archive(ctx context.Context, req history.ArchiveRequest) (uuid.UUID, error)
}

type callRuntime struct {
	ctrl      *call.Controller
	recorder  *call.PressRecorder
	store     archiver
	sessionID string
	startedAt time.Time
	pressY    float64
}

func runCall(ctx context.Context, cfg callConfig, dial call.Dialer, store archiver, in io.Reader, out, errOut io.Writer) error {
	if err := validateCallConfig(cfg); err != nil {
		return err
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	rt := &callRuntime{store: store}
	rt.ctrl = call.NewController(call.ControllerConfig{
		Session: live.Config{
			BaseURL:       cfg.BaseURL,
			AccessToken:   cfg.AccessToken,
			BotID:         cfg.BotID,
			VoiceID:       cfg.VoiceID,
			TurnDetection: cfg.TurnDetection,
			PlayPrologue:  cfg.PlayPrologue,
		},
		Dial: dial,
		Notify: func(n call.Notice) {
			if n.Fatal {
				fmt.Fprintf(errOut, "call error: %s\n", n.Message)
				return
			}
			fmt.Fprintf(out, "%s\n", n.Message)
		},
		OnState: func(s call.State) {
			fmt.Fprintf(out, "[%s]\n", s)
		},
	})
	defer rt.endCall(ctx, out, errOut)

	if rt.ctrl.PressToTalk() {
		rt.recorder = call.NewPressRecorder(call.RecorderConfig{
			Start: rt.ctrl.StartRecord,
			Stop:  rt.ctrl.StopRecord,
			OnOutcome: func(o call.Outcome) {
				fmt.Fprintf(out, "recording %s\n", o)
			},
			OnError: func(err error) {
				fmt.Fprintf(errOut, "recording error: %v\n", err)
			},
		})
		defer rt.recorder.Close()
	}

	fmt.Fprintf(out, "chirpling-call ready, bot %s, turn detection %s\n", cfg.BotID, cfg.TurnDetection)
	fmt.Fprintln(out, "Commands: /call /end /status /transcript /volume <0..1> /exit")
	if rt.recorder != nil {
		fmt.Fprintln(out, "Press-to-talk: /press /slide <y> /release /leave")
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			fmt.Fprintln(out, "bye")
			return nil
		}
		rt.handleCommand(ctx, line, cfg, out, errOut)
	}
}

func (rt *callRuntime) handleCommand(ctx context.Context, line string, cfg callConfig, out, errOut io.Writer) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/call":
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectWait)
		defer cancel()
		if err := rt.ctrl.StartCall(connectCtx); err != nil {
			return
		}
		rt.sessionID = uuid.New().String()
		rt.startedAt = time.Now()

	case "/end":
		rt.endCall(ctx, out, errOut)

	case "/status":
		fmt.Fprintf(out, "state=%s duration=%ds\n", rt.ctrl.State(), rt.ctrl.Duration())

	case "/transcript":
		msgs := rt.ctrl.Transcript().Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "(empty)")
			return
		}
		for _, msg := range msgs {
			marker := ""
			if !msg.Complete {
				marker = " …"
			}
			fmt.Fprintf(out, "%s: %s%s\n", msg.Role, msg.Text, marker)
		}
		if rt.ctrl.Transcript().AssistantTyping() {
			fmt.Fprintln(out, "(assistant is typing)")
		}

	case "/volume":
		if len(fields) != 2 {
			fmt.Fprintln(errOut, "usage: /volume <0..1>")
			return
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Fprintf(errOut, "invalid volume %q\n", fields[1])
			return
		}
		if err := rt.ctrl.SetPlaybackVolume(v); err != nil {
			fmt.Fprintf(errOut, "set volume: %v\n", err)
			return
		}
		fmt.Fprintf(out, "volume set to %.2f\n", v)

	case "/press":
		if rt.recorder == nil {
			fmt.Fprintln(errOut, "press-to-talk requires -turn-detection client_interrupt")
			return
		}
		rt.pressY = 0
		if err := rt.recorder.Press(rt.pressY); err != nil {
			return
		}
		fmt.Fprintln(out, "recording (slide up 50+ to cancel)")

	case "/slide":
		if rt.recorder == nil || len(fields) != 2 {
			fmt.Fprintln(errOut, "usage: /slide <y-offset>")
			return
		}
		dy, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Fprintf(errOut, "invalid offset %q\n", fields[1])
			return
		}
		rt.recorder.Slide(rt.pressY - dy)
		if rt.recorder.WillCancel() {
			fmt.Fprintln(out, "release to cancel")
		}

	case "/release":
		if rt.recorder == nil {
			return
		}
		rt.recorder.Release()

	case "/leave":
		if rt.recorder == nil {
			return
		}
		rt.recorder.Leave()

	default:
		fmt.Fprintf(errOut, "unknown command %q\n", fields[0])
	}
}

// endCall tears the call down and archives it when a store is configured.
// The transcript and duration are captured before EndCall resets them.
func (rt *callRuntime) endCall(ctx context.Context, out, errOut io.Writer) {
	if rt.ctrl.State() == call.StateIdle {
		return
	}
	duration := rt.ctrl.Duration()
	msgs := rt.ctrl.Transcript().Messages()
	botID := rt.ctrl.BotID()
	rt.ctrl.EndCall()

	if rt.store == nil || rt.sessionID == "" {
		return
	}
	id, err := rt.store.Archive(ctx, history.ArchiveRequest{
		SessionID:   rt.sessionID,
		BotID:       botID,
		StartedAt:   rt.startedAt,
		EndedAt:     time.Now(),
		DurationSec: duration,
		EndReason:   "hangup",
		Messages:    msgs,
	})
	if err != nil {
		fmt.Fprintf(errOut, "archive call: %v\n", err)
		return
	}
	fmt.Fprintf(out, "call archived as %s\n", id)
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "chirpling-call: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseCallConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chirpling-call: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store archiver
	if cfg.ArchiveDSN != "" {
		s, err := history.Open(ctx, cfg.ArchiveDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chirpling-call: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	if err := runCall(ctx, cfg, nil, store, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "chirpling-call: %v\n", err)
		os.Exit(1)
	}
}
