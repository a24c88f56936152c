package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/interview-pilot/internal/config"
	"github.com/jonathan/interview-pilot/internal/evaluation"
	"github.com/jonathan/interview-pilot/internal/gateway"
	"github.com/jonathan/interview-pilot/internal/logger"
	"github.com/jonathan/interview-pilot/internal/session"
	"github.com/jonathan/interview-pilot/internal/types"
)

const (
	promptRetry = "Retry"
	promptQuit  = "Quit"
)

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a practice interview in the terminal",
	Long:  `Walk through the interview setup wizard, answer the generated questions against the countdown and receive the evaluation report, all without leaving the terminal.`,
	RunE:  runPractice,
}

func init() {
	rootCmd.AddCommand(practiceCmd)
}

func runPractice(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.JSON, cfg.Debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	gw := gateway.New(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout(),
	}, log)

	hub := evaluation.NewHub(gw, evaluation.Config{
		RampInterval: cfg.Evaluation.RampInterval(),
		RampStep:     cfg.Evaluation.RampStep,
		Cap:          cfg.Evaluation.RampCap,
	}, log)

	registry := session.NewRegistry(gw, nil, log,
		session.WithEvaluatorFactory(hub.Evaluator),
		session.WithMachineOptions(session.WithListener(hub.ReleaseWhenTerminal())),
	)

	m := registry.Create(uuid.New())
	defer func() {
		_ = registry.Remove(context.Background(), m.ID())
	}()

	if err := runWizard(m, gw, log); err != nil {
		return err
	}

	fmt.Println("\nGenerating your interview questions...")
	if err := m.Generate(); err != nil {
		return err
	}

	st, err := waitThroughErrors(m, session.StateLive)
	if err != nil || st.State != session.StateLive {
		return err
	}

	if err := runLive(m); err != nil {
		return err
	}

	st, err = watchEvaluation(m, hub.Tracker(m.ID()))
	if err != nil || st.State != session.StateDone {
		return err
	}

	printReport(st.Report)
	return nil
}

// runWizard walks the five setup steps in order, driving the same step
// validation the web client goes through.
func runWizard(m *session.Machine, gw gateway.Service, log *zap.Logger) error {
	var setup types.SetupState

	// Step 1: resume (optional)
	path, err := (&promptui.Prompt{Label: "Resume file (optional, leave empty to skip)"}).Run()
	if err != nil {
		return err
	}
	if path = strings.TrimSpace(path); path != "" {
		if err := attachResume(m, gw, path); err != nil {
			// The resume step never blocks the wizard.
			log.Warn("resume upload skipped", zap.String("path", path), zap.Error(err))
			fmt.Printf("Could not use that resume (%s), continuing without one.\n", err)
		}
	}
	if _, err := m.Next(); err != nil {
		return err
	}

	// Step 2: interview type
	_, typeChoice, err := (&promptui.Select{
		Label: "Interview type",
		Items: []string{"technical", "behavioral", "both", "mixed"},
	}).Run()
	if err != nil {
		return err
	}
	setup.InterviewType = types.InterviewType(typeChoice)
	if err := applyStep(m, setup); err != nil {
		return err
	}

	// Step 3: job details
	setup.JobTitle, err = (&promptui.Prompt{
		Label: "Job title",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("job title is required")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return err
	}
	if setup.Company, err = (&promptui.Prompt{Label: "Company (optional)"}).Run(); err != nil {
		return err
	}
	if setup.Industry, err = (&promptui.Prompt{Label: "Industry (optional)"}).Run(); err != nil {
		return err
	}
	if setup.ExperienceLevel, err = (&promptui.Prompt{Label: "Experience level (optional)"}).Run(); err != nil {
		return err
	}
	if err := applyStep(m, setup); err != nil {
		return err
	}

	// Step 4: difficulty
	_, difficulty, err := (&promptui.Select{
		Label: "Difficulty",
		Items: []string{"easy", "medium", "hard"},
	}).Run()
	if err != nil {
		return err
	}
	setup.Difficulty = types.Difficulty(difficulty)
	if err := applyStep(m, setup); err != nil {
		return err
	}

	// Step 5: settings
	durations := make([]string, len(types.AllowedDurations))
	for i, d := range types.AllowedDurations {
		durations[i] = fmt.Sprintf("%d minutes", d)
	}
	idx, _, err := (&promptui.Select{Label: "Interview duration", Items: durations}).Run()
	if err != nil {
		return err
	}
	setup.DurationMinutes = types.AllowedDurations[idx]

	countRaw, err := (&promptui.Prompt{
		Label:   "Number of questions",
		Default: "5",
		Validate: func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < 1 || n > 20 {
				return fmt.Errorf("enter a number between 1 and 20")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return err
	}
	setup.QuestionCount, _ = strconv.Atoi(strings.TrimSpace(countRaw))

	focusRaw, err := (&promptui.Prompt{Label: "Focus areas, comma separated (optional)"}).Run()
	if err != nil {
		return err
	}
	for _, area := range strings.Split(focusRaw, ",") {
		if area = strings.TrimSpace(area); area != "" {
			setup.FocusAreas = append(setup.FocusAreas, area)
		}
	}

	return applyStep(m, setup)
}

// applyStep stores the answers collected so far and advances the wizard.
func applyStep(m *session.Machine, setup types.SetupState) error {
	if err := m.SetSetup(setup); err != nil {
		return err
	}
	_, err := m.Next()
	return err
}

func attachResume(m *session.Machine, gw gateway.Service, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	parsed, err := gw.ParseResume(ctx, file, file.Name())
	if err != nil {
		return err
	}
	fmt.Printf("Resume parsed: %s, %d skills found.\n", parsed.Name, len(parsed.Skills))
	return m.AttachResume(parsed)
}

// runLive presents each question with the countdown and commits typed
// answers. An empty answer skips the question. The timer may end the session
// mid-loop; the next snapshot notices and the loop exits.
func runLive(m *session.Machine) error {
	for {
		st := m.Snapshot()
		if st.State != session.StateLive {
			return nil
		}

		q := st.Questions[st.CurrentIndex]
		action := "Next"
		if st.LastQuestion {
			action = "Finish"
		}
		fmt.Printf("\nQuestion %d of %d [%s]  (time left %s)\n%s\n",
			st.CurrentIndex+1, len(st.Questions), q.Type, formatClock(st.RemainingSeconds), q.Text)

		answer, err := (&promptui.Prompt{
			Label: fmt.Sprintf("Your answer, empty to skip (%s)", action),
		}).Run()
		if err != nil {
			return err
		}

		if err := m.Advance(answer); err != nil {
			// The countdown can submit the session between the snapshot and
			// the typed answer; that is the timer doing its job, not a failure.
			if st := m.Snapshot(); st.State != session.StateLive {
				fmt.Println("\nTime is up, submitting your answers.")
				return nil
			}
			return err
		}
	}
}

// watchEvaluation prints the synthetic progress while the remote service
// scores the session, then waits for the terminal state.
func watchEvaluation(m *session.Machine, tracker *evaluation.Tracker) (session.Status, error) {
	fmt.Println("\nEvaluating your interview...")

	stop := make(chan struct{})
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		updates, cancel := tracker.Subscribe()
		defer cancel()

		lastStage := ""
		for {
			select {
			case <-stop:
				return
			case upd := <-updates:
				if upd.Failed {
					continue
				}
				if upd.Stage != lastStage {
					fmt.Printf("  %s\n", upd.Stage)
					lastStage = upd.Stage
				}
			}
		}
	}()

	st, err := waitThroughErrors(m, session.StateDone)
	close(stop)
	<-printerDone
	return st, err
}

// waitThroughErrors waits for the target state, offering a retry whenever the
// session lands in ERROR. Retrying re-enters the failed stage with the input
// already collected.
func waitThroughErrors(m *session.Machine, target session.State) (session.Status, error) {
	for {
		st, err := m.WaitFor(context.Background(), target, session.StateError)
		if err != nil {
			return st, err
		}
		if st.State != session.StateError {
			return st, nil
		}

		fmt.Printf("\nSomething went wrong: %s\n", st.ErrorMessage)
		_, choice, err := (&promptui.Select{
			Label: "Try again?",
			Items: []string{promptRetry, promptQuit},
		}).Run()
		if err != nil {
			return st, err
		}
		if choice == promptQuit {
			m.Abandon()
			return st, nil
		}
		if err := m.Retry(); err != nil {
			return st, err
		}
	}
}

func printReport(report *types.EvaluationReport) {
	if report == nil {
		return
	}

	fmt.Printf("\n==================== Evaluation ====================\n")
	fmt.Printf("Overall score: %.1f\n", report.OverallScore)
	if report.TechnicalScore != nil {
		fmt.Printf("Technical:     %.1f\n", *report.TechnicalScore)
	}
	if report.BehavioralScore != nil {
		fmt.Printf("Behavioral:    %.1f\n", *report.BehavioralScore)
	}

	if len(report.QuestionScores) > 0 {
		fmt.Println("\nPer question:")
		for i, qs := range report.QuestionScores {
			fmt.Printf("  %2d. %.1f", i+1, qs.Score)
			if qs.Feedback != "" {
				fmt.Printf("  %s", qs.Feedback)
			}
			fmt.Println()
		}
	}

	printList("Strengths", report.Strengths)
	printList("Areas to improve", report.Weaknesses)
	if report.Feedback != "" {
		fmt.Printf("\nFeedback:\n%s\n", report.Feedback)
	}
	printList("Recommendations", report.Recommendations)
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
