package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List a user's conversations",
		Run:   runConversations,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().IntP("limit", "l", 50, "Max results")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runConversations(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	st := openStore(cmd.Context(), cfg)
	defer st.Close()

	convos, err := st.Conversations(cmd.Context(), userID, limit)
	if err != nil {
		exitErr("conversations", err)
	}

	b, _ := json.MarshalIndent(convos, "", "  ")
	fmt.Println(string(b))
}
