package main

import (
	"errors"
	"fmt"
	"io"
	"net/rpc"
	"os"
	"path/filepath"
	"strings"

	"caskdb/cmd/remote"

	"github.com/peterh/liner"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  client [-addr <addr>] get <key>\n")
	fmt.Fprintf(os.Stderr, "  client [-addr <addr>] put <key> <value>\n")
	fmt.Fprintf(os.Stderr, "  client [-addr <addr>] delete <key>\n")
	fmt.Fprintf(os.Stderr, "  client [-addr <addr>] keys\n")
	fmt.Fprintf(os.Stderr, "  client [-addr <addr>] merge\n")
	fmt.Fprintf(os.Stderr, "  client [-addr <addr>]            # interactive REPL\n")
	os.Exit(1)
}

func main() {
	addr := "localhost:1729"
	args := os.Args[1:]
	if len(args) >= 2 && args[0] == "-addr" {
		addr = args[1]
		args = args[2:]
	}

	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial rpc: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if len(args) == 0 {
		(&repl{client: client}).run()
		return
	}

	out, err := runOnce(client, args)
	if errors.Is(err, errUsage) {
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if out != "" {
		fmt.Println(out)
	}
}

// runOnce executes a single command line's worth of args against client and
// returns the text to print on success.
func runOnce(client *rpc.Client, args []string) (string, error) {
	switch strings.ToLower(args[0]) {
	case "get":
		if len(args) != 2 {
			return "", errUsage
		}
		var reply remote.GetReply
		if err := client.Call("DB.Get", &remote.GetArgs{Key: []byte(args[1])}, &reply); err != nil {
			return "", fmt.Errorf("get: %w", err)
		}
		return string(reply.Value), nil

	case "put":
		if len(args) != 3 {
			return "", errUsage
		}
		if err := client.Call("DB.Put", &remote.PutArgs{Key: []byte(args[1]), Value: []byte(args[2])}, &struct{}{}); err != nil {
			return "", fmt.Errorf("put: %w", err)
		}
		return "ok", nil

	case "delete":
		if len(args) != 2 {
			return "", errUsage
		}
		if err := client.Call("DB.Delete", &remote.DeleteArgs{Key: []byte(args[1])}, &struct{}{}); err != nil {
			return "", fmt.Errorf("delete: %w", err)
		}
		return "ok", nil

	case "keys":
		if len(args) != 1 {
			return "", errUsage
		}
		var reply remote.ListKeysReply
		if err := client.Call("DB.ListKeys", &struct{}{}, &reply); err != nil {
			return "", fmt.Errorf("keys: %w", err)
		}
		lines := make([]string, len(reply.Keys))
		for i, k := range reply.Keys {
			lines[i] = string(k)
		}
		return strings.Join(lines, "\n"), nil

	case "merge":
		if len(args) != 1 {
			return "", errUsage
		}
		if err := client.Call("DB.Merge", &struct{}{}, &struct{}{}); err != nil {
			return "", fmt.Errorf("merge: %w", err)
		}
		return "ok", nil

	default:
		return "", errUsage
	}
}

var errUsage = errors.New("usage: get <key> | put <key> <value> | delete <key> | keys | merge")

// repl is an interactive, liner-backed session against a single RPC client.
type repl struct {
	client *rpc.Client
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".caskdb_client_history")
}

func (r *repl) run() {
	r.liner = liner.NewLiner()
	defer r.liner.Close()
	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("caskdb client - type 'help' for commands, 'exit' to quit")

	for {
		line, err := r.liner.Prompt("caskdb> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintln(os.Stderr, err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		if strings.ToLower(parts[0]) == "exit" || strings.ToLower(parts[0]) == "quit" {
			break
		}
		if strings.ToLower(parts[0]) == "help" {
			fmt.Println(errUsage)
			continue
		}

		out, err := runOnce(r.client, parts)
		if err != nil {
			fmt.Println(err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}

	if f, err := os.Create(historyFile()); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}
