package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/model"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Manage the subscriber registry",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all subscribers",
	RunE:  runSubscribersList,
}

var subscribersAddCmd = &cobra.Command{
	Use:   "add <chat-id> [name]",
	Short: "Subscribe a chat",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSubscribersAdd,
}

var subscribersRemoveCmd = &cobra.Command{
	Use:   "remove <chat-id>",
	Short: "Unsubscribe a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribersRemove,
}

func init() {
	rootCmd.AddCommand(subscribersCmd)
	subscribersCmd.AddCommand(subscribersListCmd, subscribersAddCmd, subscribersRemoveCmd)
}

func openStoreOrExit() model.SubscriberStore {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	subs, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open subscriber store: %v\n", err)
		os.Exit(1)
	}
	return subs
}

func parseChatID(arg string) (model.RecipientID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat id %q", arg)
	}
	return model.RecipientID(id), nil
}

func runSubscribersList(cmd *cobra.Command, args []string) error {
	subs := openStoreOrExit()
	defer subs.Close()

	list, err := subs.List(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("%-16s %-20s %-8s %s\n", "Chat ID", "Name", "Status", "Since")
	fmt.Println(strings.Repeat("─", 64))

	active := 0
	for _, s := range list {
		status := "paused"
		if s.Active {
			status = "active"
			active++
		}
		fmt.Printf("%-16d %-20s %-8s %s\n", int64(s.ID), s.Name, status, s.SubscribedAt.Format("2006-01-02"))
	}

	fmt.Printf("\nTotal: %d subscribers (%d active, %d paused)\n", len(list), active, len(list)-active)
	return nil
}

func runSubscribersAdd(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}

	subs := openStoreOrExit()
	defer subs.Close()

	if err := subs.Subscribe(context.Background(), id, name); err != nil {
		return err
	}
	fmt.Printf("subscribed %d\n", int64(id))
	return nil
}

func runSubscribersRemove(cmd *cobra.Command, args []string) error {
	id, err := parseChatID(args[0])
	if err != nil {
		return err
	}

	subs := openStoreOrExit()
	defer subs.Close()

	if err := subs.Unsubscribe(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("unsubscribed %d\n", int64(id))
	return nil
}
