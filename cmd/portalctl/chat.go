package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"newstech/pkg/chat"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the assistant; without a message starts a conversation",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd, "warn")
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.Chat()
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("the assistant is not available in offline mode")
	}
	sess := chat.NewSession(client)
	ctx := requestContext(cmd)
	w := cmd.OutOrStdout()

	send := func(msg string) {
		reply, err := sess.Send(ctx, msg)
		switch {
		case errors.Is(err, chat.ErrEmpty):
		case err != nil:
			fmt.Fprintf(w, "%s: %s\n", chat.AssistantName, chat.ErrorLine(err))
		default:
			fmt.Fprintf(w, "%s: %s\n", chat.AssistantName, reply)
		}
	}

	if len(args) > 0 {
		send(strings.Join(args, " "))
		return nil
	}

	// Piped input is read line by line; a terminal gets a prompt.
	if in := cmd.InOrStdin(); !isTerminal(in) {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			send(sc.Text())
		}
		return sc.Err()
	}
	for {
		prompt := promptui.Prompt{Label: chat.UserName}
		msg, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		send(msg)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}
