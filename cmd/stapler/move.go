package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/staplerhq/stapler/internal/engine"
)

func moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <receipt> <destination>",
		Short: "Move a receipt between the pool and expense rows",
		Long: `Move one receipt by name. The destination is either an expense ID or
the literal word "pool".

Moving onto an expense rescores the receipt against its new row; moving
back to the pool clears its confidence. Moving a receipt to the place it
already occupies is rejected.`,
		Example: `  stapler move lunch.pdf 3f2a91c0
  stapler move lunch.pdf pool`,
		Args: cobra.ExactArgs(2),
		RunE: runMove,
	}
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	_, from, ok := session.reconciler.ReceiptByName(name)
	if !ok {
		return fmt.Errorf("receipt %q not found", name)
	}
	to := parseContainer(args[1])

	outcome, err := session.reconciler.Move(ctx, name, from, to)
	if err != nil {
		return err
	}
	if err := session.save(ctx); err != nil {
		return err
	}

	confidence := "undefined"
	if outcome.Receipt.Confidence != nil {
		confidence = fmt.Sprintf("%d%%", *outcome.Receipt.Confidence)
	}
	slog.Info("Moved receipt", "name", name, "from", from, "to", to, "confidence", confidence)
	return nil
}

func parseContainer(arg string) engine.ContainerID {
	if strings.EqualFold(strings.TrimSpace(arg), "pool") {
		return engine.PoolContainer()
	}
	return engine.ExpenseContainer(arg)
}
