package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/secrets"
)

var tokenAccount string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the bot token in the OS keychain",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the bot token (read from stdin)",
	RunE:  runTokenSet,
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored bot token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := secrets.DeleteBotToken(tokenAccount); err != nil {
			return err
		}
		fmt.Println("token removed")
		return nil
	},
}

func init() {
	tokenCmd.PersistentFlags().StringVar(&tokenAccount, "account", secrets.DefaultAccount, "keychain account name")
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenDeleteCmd)
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	fmt.Fprint(os.Stderr, "Bot token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read token: %w", err)
	}
	if err := secrets.SetBotToken(tokenAccount, strings.TrimSpace(line)); err != nil {
		return err
	}
	fmt.Println("token stored in keychain")
	return nil
}
