package collide

type Commands struct {
	app *App
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

// Exit stops Run after the current frame.
func (cmd *Commands) Exit() {
	cmd.app.exit = true
}

// Frame is the index of the frame being run, starting at 0.
func (cmd *Commands) Frame() int {
	return cmd.app.frame
}
