// Command zuulworker is a standalone smart-home worker for deployments
// without a separate controller: it approves every credential request
// with a fixed policy, and forwards scanned or typed tokens to the server
// to decide whether the door opens.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/stko/zuul-ac/internal/models"
)

type worker struct {
	baseURL string
	token   string
	client  *http.Client

	approval models.OTPApproval
}

func main() {
	baseURL := flag.String("u", "http://localhost:8000", "zuul-ac server URL")
	secret := flag.String("w", "", "shared peer secret (prompted when empty)")
	validTime := flag.Int("v", 30, "credential validity in seconds")
	kind := flag.String("k", "qrcode", "credential display type (qrcode or text)")
	msg := flag.String("m", "This pin {1} is valid for {0} seconds", "approval message template")
	length := flag.Int("L", 0, "credential length override")
	keypadChars := flag.String("K", "", "credential charset override, e.g. 1234567890")
	flag.Parse()

	if *secret == "" {
		fmt.Print("Shared secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read secret: %v\n", err)
			os.Exit(1)
		}
		*secret = string(raw)
	}

	w := &worker{
		baseURL: strings.TrimRight(*baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		approval: models.OTPApproval{
			Result:      true,
			Msg:         *msg,
			Type:        *kind,
			KeypadChars: *keypadChars,
			Length:      *length,
			ValidTime:   *validTime,
		},
	}

	if err := w.login(*secret); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Connected. Scan or type a token and press enter.")

	go w.pollEvents()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}
		w.queryToken(token)
	}
}

func (w *worker) login(secret string) error {
	body, _ := json.Marshal(map[string]string{"peer": "zuulworker", "secret": secret})
	resp, err := w.client.Post(w.baseURL+"/api/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return err
	}
	w.token = session.Token
	return nil
}

// pollEvents long-polls the authority event feed and answers credential
// requests with the configured approval.
func (w *worker) pollEvents() {
	for {
		env, ok, err := w.nextEvent()
		if err != nil {
			fmt.Fprintf(os.Stderr, "event poll failed: %v\n", err)
			time.Sleep(5 * time.Second)
			continue
		}
		if !ok {
			continue
		}
		if env.Type != models.MsgOTPRequest {
			continue
		}

		var request models.OTPRequestPayload
		if err := env.Decode(&request); err != nil {
			fmt.Fprintf(os.Stderr, "bad request event: %v\n", err)
			continue
		}
		fmt.Printf("Approving credential for %s\n", request.User.DisplayName())

		reply, err := models.NewEnvelope(models.MsgOTPResponse, w.approval)
		if err != nil {
			continue
		}
		if _, err := w.postMessage(reply); err != nil {
			fmt.Fprintf(os.Stderr, "approval not delivered: %v\n", err)
		}
	}
}

func (w *worker) nextEvent() (models.Envelope, bool, error) {
	req, err := http.NewRequest(http.MethodGet, w.baseURL+"/api/v1/events?wait=25", nil)
	if err != nil {
		return models.Envelope{}, false, err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return models.Envelope{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return models.Envelope{}, false, nil
	case http.StatusOK:
		var env models.Envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return models.Envelope{}, false, err
		}
		return env, true, nil
	default:
		return models.Envelope{}, false, fmt.Errorf("unexpected status %s", resp.Status)
	}
}

// queryToken asks the server whether the presented token opens the door.
func (w *worker) queryToken(token string) {
	query, err := models.NewEnvelope(models.MsgTokenQuery, models.TokenQuery{Token: token})
	if err != nil {
		return
	}
	reply, err := w.postMessage(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token query failed: %v\n", err)
		return
	}

	var state models.TokenState
	if reply != nil && reply.Decode(&state) == nil && state.Valid {
		fmt.Println("Open the door")
	} else {
		fmt.Println("Do not open the door")
	}
}

func (w *worker) postMessage(env models.Envelope) (*models.Envelope, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, w.baseURL+"/api/v1/message", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var reply models.Envelope
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			return nil, err
		}
		return &reply, nil
	default:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
}
