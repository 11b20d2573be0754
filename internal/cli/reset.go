package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a conversation, or a whole user with --all",
		Long:  "Delete a conversation's turns and windows. With --all, delete the user and everything stored for them.",
		Run:   runReset,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().String("conversation", "", "Conversation ID")
	cmd.Flags().Bool("all", false, "Delete the user and all their data")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	conversationID, _ := cmd.Flags().GetString("conversation")
	all, _ := cmd.Flags().GetBool("all")

	if !all && conversationID == "" {
		exitErr("reset", fmt.Errorf("--conversation or --all is required"))
	}

	cfg := loadConfig()
	st := openStore(cmd.Context(), cfg)
	defer st.Close()

	var err error
	if all {
		err = st.DeleteUser(cmd.Context(), userID)
	} else {
		err = st.ResetConversation(cmd.Context(), userID, conversationID)
	}
	if err != nil {
		exitErr("reset", err)
	}

	b, _ := json.Marshal(map[string]bool{"ok": true})
	fmt.Println(string(b))
}
