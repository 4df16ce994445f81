// Package tui is the terminal chat view over a conversation.Manager.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#8ab4f8")
	colorSecondary = lipgloss.Color("#c58af9")
	colorBorder    = lipgloss.Color("#3c4043")
	colorError     = lipgloss.Color("#f28b82")
	colorText      = lipgloss.Color("#e8eaed")
	colorTextDim   = lipgloss.Color("#9aa0a6")
	colorTextMute  = lipgloss.Color("#5f6368")
)

var (
	headerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	messagesAreaStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorBorder).
				Padding(0, 1)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true).
			MarginLeft(4)

	userBubbleStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorSecondary).
			Foreground(colorText).
			Padding(0, 1).
			MarginLeft(4)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	assistantBubbleStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary).
				Padding(0, 1)

	inputPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	inputLabelStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	loadingStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorTextMute)

	statusKeyStyle = lipgloss.NewStyle().
			Foreground(colorTextDim).
			Bold(true)

	statusDescStyle = lipgloss.NewStyle().
			Foreground(colorTextMute)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true).
			PaddingLeft(1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorTextDim).
			Italic(true).
			PaddingLeft(1)
)
