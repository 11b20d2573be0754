package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/internal/ingest"
	"github.com/convomem/convomem/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Windowize a conversation transcript",
		Long:  "Read a JSON array of turns ({role, content, created_at?}) from a file or stdin, windowize it, and insert the windows with pending embeddings.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runIngest,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().String("conversation", "", "Conversation ID (required)")

	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("conversation")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	conversationID, _ := cmd.Flags().GetString("conversation")

	var (
		b   []byte
		err error
	)
	if len(args) > 0 {
		b, err = os.ReadFile(args[0])
	} else {
		b, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read turns", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal(b, &turns); err != nil {
		exitErr("parse turns", err)
	}

	cfg := loadConfig()
	st := openStore(cmd.Context(), cfg)
	defer st.Close()

	ing := ingest.New(st, cfg.Window.MinLen, cfg.Window.MaxLen)
	inserted, err := ing.IngestTurns(cmd.Context(), userID, conversationID, turns)
	if err != nil {
		exitErr("ingest", err)
	}

	out, _ := json.Marshal(map[string]int{"inserted": inserted})
	fmt.Println(string(out))
}
