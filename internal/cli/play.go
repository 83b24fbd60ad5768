package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"learnquest_backend/pkg/engine"

	"github.com/spf13/cobra"
)

// quizFile 题目文件格式
type quizFile struct {
	TestID    string `json:"testId"`
	Questions []struct {
		ID      string   `json:"id"`
		Prompt  string   `json:"prompt"`
		Options []string `json:"options"`
		Correct int      `json:"correct"`
	} `json:"questions"`
}

func loadQuiz(path string) (string, []engine.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var q quizFile
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", nil, fmt.Errorf("parse quiz %s: %w", path, err)
	}
	if q.TestID == "" {
		return "", nil, fmt.Errorf("quiz %s has no testId", path)
	}
	qs := make([]engine.Question, 0, len(q.Questions))
	for _, item := range q.Questions {
		if item.Correct < 0 || item.Correct >= len(item.Options) {
			return "", nil, fmt.Errorf("question %s: correct option out of range", item.ID)
		}
		qs = append(qs, engine.Question{ID: item.ID, Prompt: item.Prompt, Options: item.Options, CorrectOption: item.Correct})
	}
	return q.TestID, qs, nil
}

type playOptions struct {
	*RootOptions
	Quiz    string
	Timeout time.Duration
}

func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &playOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a test session from a quiz file",
		Long: `Play a test session. Answers are read from stdin, one option number per line.

Starting costs one energy. XP shows up locally as soon as the session ends and
is confirmed by the service on submit. A failed submit can be retried from the
prompt; retries reuse the attempt id so the service never counts it twice.`,
		Example: `  progressctl play --quiz ./quizzes/fractions.json
  progressctl play --quiz ./quizzes/fractions.json --timeout 20s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			testID, qs, err := loadQuiz(opts.Quiz)
			if err != nil {
				return err
			}
			return withEnv(opts.RootOptions, func(ctx context.Context, e *env) error {
				return runPlay(ctx, cmd, opts, e, testID, qs)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Quiz, "quiz", "", "path to quiz JSON (required)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-question time limit")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func runPlay(ctx context.Context, cmd *cobra.Command, opts *playOptions, e *env, testID string, qs []engine.Question) error {
	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())

	s, err := e.engine.NewSession(testID, qs, engine.SessionOptions{QuestionTimeout: opts.Timeout})
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	for {
		q := s.Current()
		fmt.Fprintf(out, "\nQ%d. %s\n", s.Index()+1, q.Prompt)
		for i, o := range q.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, o)
		}
		fmt.Fprint(out, "> ")

		choice := -1
		if in.Scan() {
			if n, err := strconv.Atoi(strings.TrimSpace(in.Text())); err == nil {
				choice = n - 1
			}
		}
		res, err := s.Answer(choice)
		switch {
		case errors.Is(err, engine.ErrAlreadyAnswered):
			fmt.Fprintln(out, "time's up")
		case err != nil:
			return err
		case res == engine.AnswerCorrect:
			fmt.Fprintln(out, "correct")
		default:
			fmt.Fprintf(out, "wrong, answer was %d\n", q.CorrectOption+1)
		}

		if err := s.Advance(); err != nil {
			return err
		}
		if s.State() == engine.StateComplete {
			break
		}
	}

	fmt.Fprintf(out, "\n%d/%d correct in %s\n", s.Correct(), len(qs), s.Duration().Round(time.Second))
	res, err := s.Submit(ctx)
	for err != nil {
		fmt.Fprintf(out, "submit failed: %v\nretry? [Y/n] ", describe(err))
		if !in.Scan() || strings.EqualFold(strings.TrimSpace(in.Text()), "n") {
			return err
		}
		res, err = s.Submit(ctx)
	}
	return emit(out, opts.RootOptions, res, func(w io.Writer) {
		fmt.Fprintf(w, "+%d XP, total %d (level %d)\n", res.XPAwarded, res.NewXP, res.NewLevel)
		if res.LeveledUp {
			fmt.Fprintf(w, "Level up! %d -> %d\n", res.PreviousLevel, res.NewLevel)
		}
	})
}
