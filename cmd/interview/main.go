// Command interview is a terminal client for the screening interview
// service. It captures answers through the microphone, plays back the
// interviewer's speech, and renders the conversation as it unfolds.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbartova/medscreen/internal/audio"
	"github.com/mbartova/medscreen/internal/engine"
	"github.com/mbartova/medscreen/internal/transport"
)

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", getenv("MEDSCREEN_SERVER", "http://localhost:8080"), "backend base URL")
	studyID := flag.String("study", "", "study to screen for (required)")
	name := flag.String("name", "", "participant name")
	verbose := flag.Bool("v", false, "log engine internals to stderr")
	flag.Parse()

	if *studyID == "" {
		fmt.Fprintln(os.Stderr, "usage: interview -study <study-id> [-name <participant>] [-server <url>]")
		os.Exit(2)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "interview: ", log.LstdFlags)
	}

	speaker, err := audio.NewSpeaker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio playback unavailable (%v), continuing text-only\n", err)
	}

	ui := &console{out: os.Stdout}

	var player audio.Player
	if speaker != nil {
		player = speaker
	}
	var eng *engine.Engine
	eng = engine.New(engine.Config{
		ParticipantName: *name,
		StudyID:         *studyID,
		Transport:       engine.NewConnector(transport.NewClient(*serverURL)),
		Recorder:        audio.NewMicrophone(),
		Player:          player,
		Logger:          logger,
		OnStateChange:   func(s engine.State) { ui.render(s, eng) },
	})
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Connecting to", *serverURL, "...")
	if err := eng.StartInterview(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "could not start interview: %v\n", err)
		os.Exit(1)
	}
	if sess := eng.Session(); sess != nil {
		fmt.Printf("Session started. Your participant ID is %s.\n\n", sess.ParticipantID)
	}
	printHelp()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(strings.ToLower(sc.Text()))
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nLeaving interview.")
			saveProgress(eng)
			return
		case line, ok := <-lines:
			if !ok {
				saveProgress(eng)
				return
			}
			if done := ui.dispatch(line, eng); done {
				saveProgress(eng)
				printResult(eng)
				return
			}
			if eng.Snapshot().Conversation == engine.StateCompleted && eng.Result() != nil {
				printResult(eng)
				return
			}
		}
	}
}

// saveProgress records an unfinished interview so the participant can be
// followed up. Uses a fresh context: the signal context is already
// cancelled when we get here via Ctrl-C.
func saveProgress(eng *engine.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.SaveProgress(ctx, "user_initiated"); err != nil {
		fmt.Fprintf(os.Stderr, "could not save progress: %v\n", err)
	}
}

// console renders engine snapshots: new transcript entries as they arrive
// and a status line whenever it changes.
type console struct {
	mu         sync.Mutex
	out        io.Writer
	printed    int
	lastStatus string
}

func (c *console) render(s engine.State, eng *engine.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range eng.Transcript()[c.printed:] {
		speaker := "You"
		if m.Role == engine.RoleAgent {
			speaker = "Interviewer"
		}
		fmt.Fprintf(c.out, "%s: %s\n", speaker, m.Content)
		c.printed++
	}

	if status := s.StatusText(); status != c.lastStatus {
		fmt.Fprintf(c.out, "  [%s]\n", status)
		c.lastStatus = status
	}
}

// dispatch maps a console command onto an engine action. Returns true when
// the user asked to quit.
func (c *console) dispatch(line string, eng *engine.Engine) bool {
	switch line {
	case "q", "quit", "exit":
		return true
	case "", "r":
		if eng.Snapshot().IsRecording {
			if err := eng.StopRecording(); err != nil {
				fmt.Fprintf(c.out, "  [recording failed: %v]\n", err)
			}
		} else {
			if err := eng.StartRecording(); err != nil {
				fmt.Fprintf(c.out, "  [microphone failed: %v]\n", err)
			}
		}
	case "s", "submit":
		eng.SubmitResponse()
	case "repeat":
		eng.RepeatCurrentQuestion()
	case "back":
		eng.RepeatLastQuestion()
	case "instruction":
		eng.HearInstructionAgain()
	case "stop":
		eng.StopAgentSpeaking()
	case "h", "help", "?":
		printHelp()
	default:
		fmt.Fprintf(c.out, "  [unknown command %q, type 'help']\n", line)
	}
	return false
}

func printHelp() {
	fmt.Println(`Commands:
  <enter> or r   start/stop recording your answer
  stop           interrupt the interviewer's speech
  repeat         hear the current question again
  back           go back to the previous question
  instruction    hear the submission instruction again
  s or submit    submit your responses for evaluation
  q or quit      leave the interview`)
}

func printResult(eng *engine.Engine) {
	res := eng.Result()
	if res == nil {
		return
	}
	fmt.Println()
	if res.ConsentRejected {
		fmt.Println("You declined to participate. No responses were evaluated.")
		return
	}
	if res.Eligibility == nil {
		fmt.Println("Interview finished.")
		return
	}
	el := res.Eligibility
	verdict := "NOT ELIGIBLE"
	if el.Eligible {
		verdict = "ELIGIBLE"
	}
	fmt.Printf("Result: %s (score %.0f%%)\n", verdict, el.Score)
	if el.HighPriorityCriteria != "" {
		fmt.Printf("High-priority criteria met: %s\n", el.HighPriorityCriteria)
	}
	for _, cr := range el.CriteriaMet {
		mark := "x"
		if cr.Meets {
			mark = "+"
		}
		fmt.Printf("  [%s] %s: %s\n", mark, cr.Criterion, cr.Response)
	}
	if el.Summary != "" {
		fmt.Println(el.Summary)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
