package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/client"
	"github.com/matheus3301/wpphub/internal/datadir"
	"github.com/skip2/go-qrcode"
)

func main() {
	configFlag := flag.String("config", "", "config file path (overrides $"+datadir.ConfigEnv+")")
	addrFlag := flag.String("addr", "", "daemon base URL (default derived from config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	timeoutFlag := flag.Duration("timeout", 90*time.Second, "request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	base := *addrFlag
	if base == "" {
		cfg, _, err := datadir.ResolveConfig(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		base = baseURL(datadir.ListenAddr(cfg, ""))
	}
	c := client.New(base, *timeoutFlag)

	ctx := context.Background()
	if args[0] != "events" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutFlag)
		defer cancel()
	}

	switch args[0] {
	case "health":
		cmdHealth(ctx, c, *jsonFlag)
	case "list":
		cmdList(ctx, c, *jsonFlag)
	case "create":
		cmdCreate(ctx, c, *jsonFlag)
	case "start", "stop", "delete", "cancel":
		requireArgs(args, 2, "wpphubctl "+args[0]+" <client-id>")
		cmdLifecycle(ctx, c, args[0], args[1])
	case "qr":
		requireArgs(args, 2, "wpphubctl qr <client-id>")
		cmdQR(ctx, c, args[1], *jsonFlag)
	case "phone":
		requireArgs(args, 3, "wpphubctl phone <client-id> <phone-number>")
		cmdPhone(ctx, c, args[1], args[2], *jsonFlag)
	case "status":
		requireArgs(args, 2, "wpphubctl status <client-id>")
		cmdStatus(ctx, c, args[1], *jsonFlag)
	case "send":
		requireArgs(args, 4, "wpphubctl send <client-id> <to> <text>")
		cmdSend(ctx, c, args[1], args[2], strings.Join(args[3:], " "), *jsonFlag)
	case "events":
		var prefix, clientID string
		if len(args) >= 2 {
			prefix = args[1]
		}
		if len(args) >= 3 {
			clientID = args[2]
		}
		cmdEvents(ctx, c, prefix, clientID)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wpphubctl [--addr <url>] [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  health                     Show daemon health")
	fmt.Fprintln(os.Stderr, "  list                       List clients")
	fmt.Fprintln(os.Stderr, "  create                     Create a client awaiting setup")
	fmt.Fprintln(os.Stderr, "  start <id>                 Start a client session")
	fmt.Fprintln(os.Stderr, "  stop <id>                  Stop a client session")
	fmt.Fprintln(os.Stderr, "  delete <id>                Stop a client and wipe its data")
	fmt.Fprintln(os.Stderr, "  qr <id>                    Pair by scanning a QR code")
	fmt.Fprintln(os.Stderr, "  phone <id> <number>        Pair with a phone code")
	fmt.Fprintln(os.Stderr, "  status <id>                Show pairing status")
	fmt.Fprintln(os.Stderr, "  cancel <id>                Cancel a pending pairing")
	fmt.Fprintln(os.Stderr, "  send <id> <to> <text>      Send a text message")
	fmt.Fprintln(os.Stderr, "  events [prefix] [id]       Stream daemon events")
}

// baseURL turns a listen address such as ":5000" into a loopback URL.
func baseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "usage: "+usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdHealth(ctx context.Context, c *client.Client, jsonOut bool) {
	resp, err := c.Health(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Status:      %s\n", resp.Status)
	fmt.Printf("Sessions:    %d\n", resp.Sessions)
	fmt.Printf("Subscribers: %d\n", resp.Subscribers)
}

func cmdList(ctx context.Context, c *client.Client, jsonOut bool) {
	clients, err := c.ListClients(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(clients)
		return
	}
	if len(clients) == 0 {
		fmt.Println("No clients found.")
		return
	}
	for _, cl := range clients {
		fmt.Printf("%-44s %-14s %s\n", cl.ID, cl.Status, cl.Name)
	}
}

func cmdCreate(ctx context.Context, c *client.Client, jsonOut bool) {
	cl, err := c.CreateClient(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(cl)
		return
	}
	fmt.Printf("Created client %s\n", cl.ID)
}

func cmdLifecycle(ctx context.Context, c *client.Client, action, id string) {
	var err error
	switch action {
	case "start":
		err = c.Start(ctx, id)
	case "stop":
		err = c.Stop(ctx, id)
	case "delete":
		err = c.Delete(ctx, id)
	case "cancel":
		err = c.Cancel(ctx, id)
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("%s: %s ok\n", id, action)
}

func cmdQR(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	resp, err := c.GenerateQR(ctx, id)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	printQR(resp.QR)
	fmt.Println("Scan with WhatsApp > Linked devices, then run: wpphubctl status " + id)
}

func printQR(content string) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		fatal(err)
	}
	fmt.Println(q.ToSmallString(false))
}

func cmdPhone(ctx context.Context, c *client.Client, id, phone string, jsonOut bool) {
	resp, err := c.GeneratePhoneCode(ctx, id, phone)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Pairing code: %s\n", resp.Code)
}

func cmdStatus(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	resp, err := c.AuthStatus(ctx, id)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	switch resp.Status {
	case "paired":
		fmt.Printf("Paired as %s (%s)\n", resp.Client.Name, resp.Client.Phone)
	case "error":
		fmt.Printf("Pairing failed: %s\n", resp.Message)
	default:
		fmt.Println("Pairing pending.")
		if latest, err := c.LatestQR(ctx, id); err == nil && latest.QR != "" {
			printQR(latest.QR)
		}
	}
}

func cmdSend(ctx context.Context, c *client.Client, id, to, text string, jsonOut bool) {
	resp, err := c.Send(ctx, id, to, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Sent %s to %s\n", resp.ID, resp.To)
}

func cmdEvents(ctx context.Context, c *client.Client, prefix, clientID string) {
	err := c.Events(ctx, prefix, clientID, func(e client.Event) error {
		fmt.Printf("%s %-24s %-44s %s\n", e.Timestamp.Format(time.RFC3339), e.Kind, e.ClientID, e.Payload)
		return nil
	})
	if err != nil {
		fatal(err)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
