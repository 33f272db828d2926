package channel

import "strings"

// Command is a parsed console command.
type Command struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// ParseCommand checks if a line starts with "/" and parses it into a Command.
// Returns nil if the line is not a command.
func ParseCommand(text string) *Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if name == "" {
		return nil
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return &Command{Name: name, Args: args, Raw: text}
}

func helpText() string {
	return `Available commands:
  /help               show this help
  /new                leave the current thread and drop pending replies and attachments
  /thread <id>        post the next messages in the thread rooted at message <id>
  /reply <id>         make the next message a reply to message <id>
  /attach <path|url>  attach a file to the next message
  /react <id> <name>  react to message <id>
  /as <user-id>       speak as another user
  /dm                 toggle direct-message mode
  /history            show the messages of the current conversation
  /quit               exit`
}
