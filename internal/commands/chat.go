package commands

import (
	"gemini-chat/internal/tui"
)

func runChat() error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	return tui.Run(s.manager, tui.Options{
		Title:  s.cfg.ServerURL,
		Render: renderOptions(),
	})
}
