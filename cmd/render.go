package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"digital-dean/internal/helper"
	"digital-dean/internal/models"
	"digital-dean/internal/quiz"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	correctStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	wrongStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func printPanel(title, body string) {
	fmt.Println(titleStyle.Render(title))
	fmt.Println(panelStyle.Render(body))
}

func printGrade(r *models.GradingResult) {
	printPanel("Grade: "+r.Score, r.Feedback)
}

func memorizedMessage(n int) string {
	return fmt.Sprintf("Successfully memorized %d knowledge chunks.", n)
}

// quizMaker is the part of the tutor an interactive quiz needs
type quizMaker interface {
	GenerateQuiz(ctx context.Context, topic string) (*quiz.Session, error)
}

// runQuiz asks every question on out and reads answers from in until the quiz completes
func runQuiz(ctx context.Context, dean quizMaker, topic string, in io.Reader, out io.Writer) error {
	session, err := dean.GenerateQuiz(ctx, topic)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	questions := session.Questions()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Quiz: %s (%d questions)", topic, len(questions))))

	for i, q := range questions {
		fmt.Fprintln(out, panelStyle.Render(fmt.Sprintf("%d. %s\n%s", i+1, q.Prompt, strings.Join(q.Options, "\n"))))
		for {
			fmt.Fprint(out, dimStyle.Render("Your answer: "))
			if !scanner.Scan() {
				session.Abandon()
				if err := scanner.Err(); err != nil {
					return err
				}
				fmt.Fprintln(out, "\nQuiz abandoned.")
				return nil
			}
			chosen := strings.TrimSpace(scanner.Text())
			if chosen == "" {
				continue
			}
			outcome, err := session.SubmitAnswer(i, chosen)
			if errors.Is(err, quiz.ErrInvalidChoice) {
				fmt.Fprintln(out, dimStyle.Render("Answer with the option letter, for example B."))
				continue
			}
			if err != nil {
				return err
			}
			if outcome.Correct {
				fmt.Fprintln(out, correctStyle.Render("Correct!"))
			} else {
				fmt.Fprintln(out, wrongStyle.Render("Wrong. The answer was "+outcome.CorrectAnswer+"."))
			}
			break
		}
	}

	correct, total := session.Score()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Score: %d/%d (%s%%)", correct, total,
		strconv.FormatFloat(session.Percentage(), 'f', 0, 64))))
	return nil
}

// copyToTemp copies src into dir under a unique name
func copyToTemp(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrImageUnreadable, err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst, err := helper.UniquePath(dir, src)
	if err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}
