// cmd/tools/webhook-doctor/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"leadgen-workers/internal/common/diagnostics"
	commonhttp "leadgen-workers/internal/common/http"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/webhook"
)

func main() {
	diagnoseCmd := flag.NewFlagSet("diagnose", flag.ExitOnError)
	sendCmd := flag.NewFlagSet("send", flag.ExitOnError)
	fallbackCmd := flag.NewFlagSet("fallback", flag.ExitOnError)

	// diagnose flags
	diagURL := diagnoseCmd.String("url", "", "Webhook URL to probe")
	diagTimeout := diagnoseCmd.Duration("timeout", 10*time.Second, "Per-probe timeout")
	diagOrigin := diagnoseCmd.String("origin", "", "Origin sent with the CORS preflight")

	// send flags
	sendURL := sendCmd.String("url", "", "Webhook URL")
	sendMessage := sendCmd.String("message", "", "Message text")
	sendAttempts := sendCmd.Int("attempts", 0, "Max attempts (0 uses the default)")
	sendTimeout := sendCmd.Duration("timeout", 0, "Per-attempt timeout (0 uses the default)")
	sendVerbose := sendCmd.Bool("v", false, "Log every attempt")

	// fallback flags
	fbMessage := fallbackCmd.String("message", "", "Message text")
	fbIndustry := fallbackCmd.String("industry", "", "Target industry")
	fbLocation := fallbackCmd.String("location", "", "Target location")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "diagnose":
		diagnoseCmd.Parse(os.Args[2:])
		if *diagURL == "" {
			fmt.Println("Error: url is required for diagnose.")
			diagnoseCmd.Usage()
			os.Exit(1)
		}
		runner := diagnostics.NewRunner(
			commonhttp.NewProbeClient(*diagTimeout*2),
			diagnostics.Options{ProbeTimeout: *diagTimeout, AllowedOrigin: *diagOrigin},
			nil,
			logger.NewNoOpLogger(),
		)
		report := runner.Run(ctx, *diagURL)
		printJSON(report)
		if report.Overall == diagnostics.OverallCritical {
			os.Exit(2)
		}

	case "send":
		sendCmd.Parse(os.Args[2:])
		if *sendMessage == "" {
			fmt.Println("Error: message is required for send.")
			sendCmd.Usage()
			os.Exit(1)
		}
		log := logger.NewNoOpLogger()
		if *sendVerbose {
			log = logger.NewStructured("debug", "console")
		}
		client := webhook.NewClient(commonhttp.NewClient(5*time.Minute), webhook.DefaultOptions(), log)

		var opts []webhook.CallOption
		if *sendAttempts > 0 {
			opts = append(opts, webhook.WithMaxAttempts(*sendAttempts))
		}
		if *sendTimeout > 0 {
			opts = append(opts, webhook.WithTimeout(*sendTimeout))
		}
		res := client.SendMessage(ctx, *sendURL, webhook.OutboundPayload{PrimaryText: *sendMessage}, opts...)
		printJSON(res)
		if !res.Success {
			os.Exit(2)
		}

	case "fallback":
		fallbackCmd.Parse(os.Args[2:])
		payload := webhook.OutboundPayload{PrimaryText: *fbMessage}
		if *fbIndustry != "" || *fbLocation != "" {
			payload.TargetAudience = &webhook.TargetAudience{Industry: *fbIndustry, Location: *fbLocation}
		}
		printJSON(webhook.NewFallbackGenerator().Generate(payload))

	case "help":
		fallthrough
	default:
		help()
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Error encoding output: %v\n", err)
		os.Exit(1)
	}
}

func help() {
	fmt.Println(`
Usage: webhook-doctor <command> [flags]

Commands:
  diagnose  Probe a webhook URL and print the diagnostics report
  send      Send one message through the resilient webhook client
  fallback  Print the locally generated fallback answer for a message
  help      Show this help message

Examples:
  webhook-doctor diagnose -url https://n8n.example.com/webhook/lead-chat
  webhook-doctor send -url https://n8n.example.com/webhook/lead-chat -message "IT Leiter in Berlin" -attempts 2
  webhook-doctor fallback -message "Geschäftsführer im Maschinenbau" -location München

Exit status is 2 when diagnose reports critical or send falls back.`)
}
