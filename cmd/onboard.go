package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gosentinel/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Run: func(cmd *cobra.Command, args []string) {
			if canAutoOnboard() {
				if !runAutoOnboard(resolveConfigPath()) {
					os.Exit(1)
				}
				return
			}
			runOnboard()
		},
	}
}

// canAutoOnboard reports whether the environment already describes a
// gateway, which means non-interactive setup (Docker, CI).
func canAutoOnboard() bool {
	return os.Getenv("ONEBOT__WS_URL") != "" || os.Getenv("ONEBOT__LISTEN_ADDR") != ""
}

// runAutoOnboard materializes config.json from environment variables.
// Returns false on fatal error.
func runAutoOnboard(cfgPath string) bool {
	fmt.Println("Auto-onboard: environment variables detected, running non-interactive setup...")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return false
	}
	if len(cfg.Superusers) == 0 {
		fmt.Println("  Warning: SUPERUSERS is empty, operational commands will be ignored")
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Printf("  Warning: could not save config: %v\n", err)
	} else {
		fmt.Printf("  Config saved to %s\n", cfgPath)
	}
	fmt.Println("Auto-onboard complete.")
	return true
}

func runOnboard() {
	cfgPath := resolveConfigPath()
	cfg := config.Default()

	var (
		wsURL      = "ws://127.0.0.1:3001"
		token      string
		superusers string
		groups     string
		targets    string
		archive    string
		geminiKey  string
		model      = cfg.Agent.GeminiModel
		n8nBase    string
		n8nPath    string
		n8nKey     string
	)

	requireIDs := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("至少填写一个 QQ 号")
		}
		if len(config.ParseInt64List(s)) == 0 {
			return errors.New("无法解析 QQ 号，请用逗号分隔数字")
		}
		return nil
	}
	optionalIDs := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if len(config.ParseInt64List(s)) == 0 {
			return errors.New("无法解析 QQ 号，请用逗号分隔数字")
		}
		return nil
	}
	optionalID := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
			return errors.New("请输入纯数字群号")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("gosentinel setup").
				Description("连接 NapCat / OneBot V11 协议端并配置防撤回与智能体。"),
			huh.NewInput().
				Title("OneBot websocket 地址").
				Description("NapCat 正向 ws 端口").
				Placeholder("ws://127.0.0.1:3001").
				Value(&wsURL),
			huh.NewInput().
				Title("访问令牌 (access token)").
				EchoMode(huh.EchoModePassword).
				Value(&token),
			huh.NewInput().
				Title("超级用户 QQ").
				Description("逗号分隔，可多个").
				Validate(requireIDs).
				Value(&superusers),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("防撤回监控群组").
				Description("逗号分隔的群号，留空则不监控").
				Validate(optionalIDs).
				Value(&groups),
			huh.NewInput().
				Title("撤回通知接收人 QQ").
				Description("留空则使用超级用户").
				Validate(optionalIDs).
				Value(&targets),
			huh.NewInput().
				Title("归档群号").
				Description("用于中转合并转发消息，留空则禁用").
				Validate(optionalID).
				Value(&archive),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API key").
				Description("留空则禁用智能体会话").
				EchoMode(huh.EchoModePassword).
				Value(&geminiKey),
			huh.NewInput().
				Title("Gemini 模型").
				Value(&model),
			huh.NewInput().
				Title("n8n 地址").
				Placeholder("https://n8n.example.com").
				Value(&n8nBase),
			huh.NewInput().
				Title("n8n webhook 路径").
				Placeholder("webhook/qq-agent").
				Value(&n8nPath),
			huh.NewInput().
				Title("n8n API key").
				EchoMode(huh.EchoModePassword).
				Value(&n8nKey),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Printf("Setup aborted: %v\n", err)
		os.Exit(1)
	}

	cfg.OneBot.WSURL = strings.TrimSpace(wsURL)
	cfg.OneBot.AccessToken = strings.TrimSpace(token)
	cfg.Superusers = config.ParseInt64List(superusers)
	cfg.AntiRecall.MonitorGroups = config.ParseInt64List(groups)
	cfg.AntiRecall.TargetUserIDs = config.ParseInt64List(targets)
	if len(cfg.AntiRecall.TargetUserIDs) == 0 {
		cfg.AntiRecall.TargetUserIDs = cfg.Superusers
	}
	if s := strings.TrimSpace(archive); s != "" {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.AntiRecall.ArchiveGroupID = id
		}
	}
	cfg.Agent.GeminiAPIKey = strings.TrimSpace(geminiKey)
	cfg.Agent.GeminiModel = strings.TrimSpace(model)
	cfg.Agent.N8NBaseURL = strings.TrimSpace(n8nBase)
	cfg.Agent.N8NWebhookPath = strings.TrimSpace(n8nPath)
	cfg.Agent.N8NAPIKey = strings.TrimSpace(n8nKey)

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Printf("Could not save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Config saved to %s\n", cfgPath)
	fmt.Println()
	fmt.Println("Start the bot:")
	fmt.Println("  ./gosentinel")
	fmt.Println()
	fmt.Println("Secrets can also live in the environment (ONEBOT__ACCESS_TOKEN,")
	fmt.Println("AGENT__GEMINI_API_KEY, AGENT__N8N_API_KEY) instead of config.json.")
}
