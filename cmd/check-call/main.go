package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/troikatech/callbridge/pkg/client"
	"github.com/troikatech/callbridge/pkg/env"
	"github.com/troikatech/callbridge/pkg/logger"
	"github.com/troikatech/callbridge/pkg/twilio"
)

func main() {
	baseURL := flag.String("api", "http://localhost:8081", "call bridge base URL (or API_URL)")
	carrier := flag.Bool("carrier", false, "also fetch the call from Twilio using credentials in .env")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalf("Usage: check-call [flags] <call_id>")
	}
	if url := os.Getenv("API_URL"); url != "" {
		*baseURL = url
	}
	callID := flag.Arg(0)

	fmt.Println("========================================")
	fmt.Printf("Checking Call Status: %s\n", callID)
	fmt.Println("========================================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api := client.NewAPI(*baseURL, 15*time.Second)
	status, err := api.CallStatus(ctx, callID)
	if err != nil {
		log.Fatalf("❌ Failed to get call status: %v", err)
	}

	fmt.Println("✅ Call Details:")
	fmt.Println("----------------------------------------")
	fmt.Printf("status:          %s\n", status.Status)
	fmt.Printf("phone:           %s\n", status.Phone)
	fmt.Printf("room_name:       %s\n", status.RoomName)
	fmt.Printf("room_confirmed:  %t\n", status.RoomConfirmed)
	fmt.Printf("twilio_call_sid: %s\n", status.TwilioCallSID)
	if status.DialOutcome != "" {
		fmt.Printf("dial_outcome:    %s\n", status.DialOutcome)
	}
	fmt.Printf("updated_at:      %s\n", status.UpdatedAt)

	if cfg, err := api.RoomConfig(ctx, status.RoomName); err == nil {
		fmt.Println()
		fmt.Println("Room Config:")
		fmt.Println("----------------------------------------")
		fmt.Printf("language:        %s (%s)\n", cfg.Language, cfg.LanguageName)
		fmt.Printf("prompt:          %s\n", cfg.Prompt)
	}

	if *carrier && status.TwilioCallSID != "" {
		cfg, err := env.Load(".env")
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if !cfg.TwilioConfigured() {
			log.Fatalf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required with -carrier")
		}

		tw := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logger.Log)
		info, err := tw.FetchCall(ctx, status.TwilioCallSID)
		if err != nil {
			log.Fatalf("❌ Failed to fetch call from Twilio: %v", err)
		}

		fmt.Println()
		fmt.Println("Twilio:")
		fmt.Println("----------------------------------------")
		fmt.Printf("status:          %s\n", info.Status)
		fmt.Printf("direction:       %s\n", info.Direction)
		fmt.Printf("duration:        %s\n", info.Duration)
		fmt.Printf("start_time:      %s\n", info.StartTime)
		fmt.Printf("end_time:        %s\n", info.EndTime)
	}
}
