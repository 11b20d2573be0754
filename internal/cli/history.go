package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a conversation's turns",
		Run:   runHistory,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().String("conversation", "", "Conversation ID (required)")
	cmd.Flags().IntP("limit", "l", 500, "Max turns")
	cmd.Flags().Bool("text", false, "Print role: content lines instead of JSON")

	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("conversation")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	conversationID, _ := cmd.Flags().GetString("conversation")
	limit, _ := cmd.Flags().GetInt("limit")
	asText, _ := cmd.Flags().GetBool("text")

	cfg := loadConfig()
	st := openStore(cmd.Context(), cfg)
	defer st.Close()

	turns, err := st.Turns(cmd.Context(), userID, conversationID, limit)
	if err != nil {
		exitErr("history", err)
	}

	if asText {
		for _, t := range turns {
			fmt.Printf("%s: %s\n", t.Role, t.Content)
		}
		return
	}
	b, _ := json.MarshalIndent(turns, "", "  ")
	fmt.Println(string(b))
}
