package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/courier/broker"
	"github.com/teranos/courier/errors"
	"github.com/teranos/courier/internal/httpclient"
	"github.com/teranos/courier/pulse/jobs"
)

// SendCmd delivers a signed job directly to a running server
var SendCmd = &cobra.Command{
	Use:   "send <job> [payload-json]",
	Short: "Deliver a signed job straight to a running server",
	Long: `Sign a job with the current signing key and POST it to a webhook, the
way the broker would. Useful for running a job once against a local server
without a round trip through the broker.

The webhook URL defaults to http://localhost:<server.port>/jobs-webhook.
The signature subject is broker.destination_url when set, so the server
accepts the delivery.

Examples:
  courier send kv.cleanup.pkce
  courier send report.send '{"user":"u1"}' --url http://localhost:9000/jobs-webhook`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var sendURL string

func init() {
	SendCmd.Flags().StringVar(&sendURL, "url", "", "Webhook URL (default: local server)")
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(args[1:])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key := cfg.Broker.CurrentSigningKey
	if key == "" {
		key = cfg.Broker.NextSigningKey
	}
	if key == "" {
		return cfg.RequireSigningKeys()
	}

	target := sendURL
	if target == "" {
		target = "http://localhost:" + strconv.Itoa(cfg.Server.Port) + "/jobs-webhook"
	}
	subject := cfg.Broker.DestinationURL
	if subject == "" {
		subject = target
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), brokerTimeout)
	defer cancel()

	status, body, err := deliver(ctx, httpclient.New(brokerTimeout, httpclient.AllowPrivateNetworks()), target, subject, key,
		jobs.Job{Name: args[0], Payload: payload})
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	if status != http.StatusOK {
		return errors.Newf("webhook answered %d", status)
	}
	return nil
}

// deliver signs job for subject and posts it to target.
func deliver(ctx context.Context, client broker.Doer, target, subject, key string, job jobs.Job) (int, []byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return 0, nil, errors.Wrap(err, "encode job")
	}
	signature, err := broker.Sign(key, body, subject, 5*time.Minute)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(broker.HeaderSignature, signature)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "post %s", target)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read response")
	}
	return resp.StatusCode, bytes.TrimSpace(respBody), nil
}
