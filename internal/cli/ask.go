package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/internal/compose"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against stored memory",
		Long:  "Embed the question, retrieve the best-matching windows, and answer grounded in them. Question can be a positional arg or piped via stdin.",
		Run:   runAsk,
	}

	cmd.Flags().StringP("user", "u", "", "User ID (required)")
	cmd.Flags().Bool("hybrid", true, "Fuse keyword rank with vector similarity")
	cmd.Flags().IntP("top-k", "k", 0, "Result count (default from config)")
	cmd.Flags().Bool("answer-only", false, "Print only the answer text")

	cmd.MarkFlagRequired("user")

	RootCmd.AddCommand(cmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	hybrid, _ := cmd.Flags().GetBool("hybrid")
	topK, _ := cmd.Flags().GetInt("top-k")
	answerOnly, _ := cmd.Flags().GetBool("answer-only")

	var question string
	if len(args) > 0 {
		question = strings.Join(args, " ")
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		question = string(b)
	}
	if strings.TrimSpace(question) == "" {
		exitErr("ask", fmt.Errorf("question is required (positional arg or stdin)"))
	}

	cfg := loadConfig()
	st := openStore(cmd.Context(), cfg)
	defer st.Close()

	mode := compose.ModeVector
	if hybrid {
		mode = compose.ModeHybrid
	}
	res, err := newComposer(cfg, st).WithTopK(topK).Answer(cmd.Context(), userID, question, mode)
	if err != nil {
		exitErr("ask", err)
	}

	if answerOnly {
		fmt.Println(res.Answer)
		return
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
