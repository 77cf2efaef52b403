package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/troikatech/callbridge/pkg/client"
	"github.com/troikatech/callbridge/pkg/validation"
)

func main() {
	baseURL := flag.String("api", "http://localhost:8081", "call bridge base URL (or API_URL)")
	language := flag.String("language", "en-US", "conversation language code")
	languageName := flag.String("language-name", "English", "human readable language name")
	prompt := flag.String("prompt", "You are a friendly assistant placing a courtesy call.", "agent instructions")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalf("Usage: make-call [flags] <phone_number>")
	}
	if url := os.Getenv("API_URL"); url != "" {
		*baseURL = url
	}

	phone, err := validation.NormalizeE164(flag.Arg(0))
	if err != nil {
		log.Fatalf("Invalid phone number %q: %v", flag.Arg(0), err)
	}

	fmt.Println("========================================")
	fmt.Printf("Making Call to %s\n", phone)
	fmt.Println("========================================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	api := client.NewAPI(*baseURL, 30*time.Second)
	resp, err := api.InitiateCall(ctx, client.InitiateRequest{
		PhoneNumber:  phone,
		Language:     *language,
		LanguageName: *languageName,
		Prompt:       *prompt,
	})
	if err != nil {
		log.Fatalf("❌ Call initiation failed: %v", err)
	}

	fmt.Println("✅ Call initiated successfully!")
	fmt.Printf("Call ID:   %s\n", resp.CallID)
	fmt.Printf("Room:      %s\n", resp.RoomName)
	fmt.Printf("Status:    %s\n", resp.Status)
	if resp.TwilioCallSID != "" {
		fmt.Printf("Call SID:  %s\n", resp.TwilioCallSID)
	}
	if resp.Message != "" {
		fmt.Printf("Message:   %s\n", resp.Message)
	}

	fmt.Println()
	fmt.Printf("Check progress with: check-call %s\n", resp.CallID)
}
