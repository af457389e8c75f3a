package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gosentinel/internal/config"
	"github.com/nextlevelbuilder/gosentinel/internal/confstore"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("gosentinel doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  网关:")
	printItem("连接地址", orUnset(cfg.OneBot.WSURL))
	printItem("反向监听", orUnset(cfg.OneBot.ListenAddr))
	printItem("访问令牌", maskSecret(cfg.OneBot.AccessToken))

	fmt.Println()
	fmt.Println("  防撤回:")
	printItem("监控群组", formatIDs(cfg.AntiRecall.MonitorGroups))
	printItem("通知用户", formatIDs(cfg.AntiRecall.TargetUserIDs))
	if cfg.AntiRecall.ArchiveGroupID != 0 {
		printItem("归档群组", strconv.FormatInt(cfg.AntiRecall.ArchiveGroupID, 10))
	} else {
		printItem("归档群组", "(未配置，合并转发消息将无法完整还原)")
	}
	store := confstore.Open(confstore.DefaultPath())
	if store.GetBool(confstore.PluginKey("anti_recall", "enabled"), true) {
		printItem("当前开关", "开启")
	} else {
		printItem("当前开关", "关闭")
	}

	fmt.Println()
	fmt.Println("  智能体:")
	printItem("LLM 提供方", orUnset(cfg.Agent.Provider))
	printItem("模型", orUnset(cfg.Agent.GeminiModel))
	printItem("Gemini 密钥", maskSecret(cfg.Agent.GeminiAPIKey))
	printItem("n8n 地址", orUnset(cfg.Agent.N8NBaseURL))
	printItem("Webhook 路径", orUnset(cfg.Agent.N8NWebhookPath))
	printItem("n8n 密钥", maskSecret(cfg.Agent.N8NAPIKey))

	fmt.Println()
	fmt.Println("  持久化:")
	storePath := confstore.DefaultPath()
	if _, err := os.Stat(storePath); err != nil {
		printItem("存储文件", storePath+" (尚未创建)")
	} else {
		printItem("存储文件", storePath+" (OK)")
	}

	if warnings := cfg.Warnings(); len(warnings) > 0 {
		fmt.Println()
		fmt.Println("  Warnings:")
		for _, w := range warnings {
			fmt.Printf("    - %s\n", w)
		}
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

const doctorLabelWidth = 16

// printItem pads by display width, not byte count, so the value column
// lines up behind Chinese labels.
func printItem(label, value string) {
	fmt.Printf("    %s %s\n", runewidth.FillRight(label+":", doctorLabelWidth), value)
}

func orUnset(v string) string {
	if v == "" {
		return "(未配置)"
	}
	return v
}

func maskSecret(secret string) string {
	if secret == "" {
		return "(未配置)"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func formatIDs(ids config.Int64List) string {
	if len(ids) == 0 {
		return "(未配置)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%d 个 [%s]", len(ids), strings.Join(parts, ", "))
}
