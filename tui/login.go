package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wumingmud/client/auth"
)

var (
	formTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	formErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	formHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// loginForm collects credentials and performs the auth exchange. It
// covers both login and registration; Ctrl+R toggles between them.
type loginForm struct {
	auth       *auth.Client
	inputs     []textinput.Model
	focus      int
	register   bool
	submitting bool
	errText    string
}

const (
	fieldUsername = iota
	fieldPassword
	fieldName
)

func newLoginForm(authClient *auth.Client) loginForm {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 32
	username.Width = 30
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 64
	password.Width = 30
	password.EchoMode = textinput.EchoPassword

	name := textinput.New()
	name.Placeholder = "character name"
	name.CharLimit = 32
	name.Width = 30

	return loginForm{
		auth:   authClient,
		inputs: []textinput.Model{username, password, name},
	}
}

// authResultMsg carries the outcome of a login or register attempt.
type authResultMsg struct {
	resp *auth.Response
	err  error
}

func (f *loginForm) fieldCount() int {
	if f.register {
		return 3
	}
	return 2
}

func (f *loginForm) setFocus(i int) {
	f.focus = i
	for j := range f.inputs {
		if j == i {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
}

func (f *loginForm) submit() tea.Cmd {
	username := strings.TrimSpace(f.inputs[fieldUsername].Value())
	password := f.inputs[fieldPassword].Value()
	name := strings.TrimSpace(f.inputs[fieldName].Value())

	if username == "" || password == "" {
		f.errText = "Username and password are required."
		return nil
	}
	if f.register && name == "" {
		f.errText = "Pick a character name."
		return nil
	}

	f.submitting = true
	f.errText = ""
	register := f.register
	authClient := f.auth
	return func() tea.Msg {
		if register {
			resp, err := authClient.Register(context.Background(), auth.RegisterRequest{
				Username: username,
				Password: password,
				Name:     name,
			})
			return authResultMsg{resp: resp, err: err}
		}
		resp, err := authClient.Login(context.Background(), auth.LoginRequest{
			Username: username,
			Password: password,
		})
		return authResultMsg{resp: resp, err: err}
	}
}

func (f *loginForm) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if f.submitting {
			return nil
		}
		switch msg.Type {
		case tea.KeyCtrlR:
			f.register = !f.register
			f.errText = ""
			if f.focus >= f.fieldCount() {
				f.setFocus(0)
			}
			return nil

		case tea.KeyTab, tea.KeyDown:
			f.setFocus((f.focus + 1) % f.fieldCount())
			return nil

		case tea.KeyShiftTab, tea.KeyUp:
			f.setFocus((f.focus + f.fieldCount() - 1) % f.fieldCount())
			return nil

		case tea.KeyEnter:
			if f.focus < f.fieldCount()-1 {
				f.setFocus(f.focus + 1)
				return nil
			}
			return f.submit()
		}

	case authResultMsg:
		f.submitting = false
		if msg.err != nil {
			f.errText = authErrorText(msg.err)
			return nil
		}
		return nil
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *loginForm) View() string {
	var b strings.Builder

	title := "Sign in"
	if f.register {
		title = "Create a character"
	}
	b.WriteString(formTitleStyle.Render(title))
	b.WriteString("\n\n")

	labels := []string{"Username", "Password", "Name"}
	for i := 0; i < f.fieldCount(); i++ {
		b.WriteString("  " + labels[i] + ": " + f.inputs[i].View() + "\n")
	}

	if f.submitting {
		b.WriteString("\n  " + formHintStyle.Render("Contacting the server..."))
	} else if f.errText != "" {
		b.WriteString("\n  " + formErrorStyle.Render(f.errText))
	}

	b.WriteString("\n\n  " + formHintStyle.Render("Enter: next/submit • Ctrl+R: toggle register • Ctrl+C: quit"))
	return b.String()
}

// authErrorText maps a failed request onto a short user-facing line.
func authErrorText(err error) string {
	reqErr, ok := err.(*auth.RequestError)
	if !ok {
		return "Something went wrong. Try again."
	}
	switch reqErr.Kind {
	case auth.KindNetwork:
		return "Cannot reach the server. Check your connection."
	case auth.KindTimeout:
		return "The server took too long to respond."
	case auth.KindAuth:
		if reqErr.Message != "" {
			return reqErr.Message
		}
		return "Invalid username or password."
	default:
		if reqErr.Message != "" {
			return reqErr.Message
		}
		return "The server rejected the request."
	}
}
