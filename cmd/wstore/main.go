package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/wstore/pkg/client"
)

func newClient(cmd *cli.Command) (*client.Client, error) {
	var opts []client.Option
	if cred := cmd.String("auth"); cred != "" {
		user, pass, err := client.ParseCredential(cred)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithCredential(user, pass))
	}
	if cmd.Bool("include") {
		opts = append(opts, client.WithHeaderOutput(cmd.Root().Writer))
	}
	return client.New(cmd.String("base-url"), opts...)
}

func runGet(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: wstore get <remote> [local]")
	}
	remote, dest := cmd.Args().Get(0), cmd.Args().Get(1)
	if out := cmd.String("output"); out != "" {
		dest = out
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	content, err := c.Get(ctx, remote, dest)
	if err != nil {
		return fmt.Errorf("getting file: %w", err)
	}

	w := cmd.Root().Writer
	if dest != "" {
		fmt.Fprintf(w, "File saved to %s\n", dest)
		return nil
	}
	if _, err := w.Write(content); err != nil {
		return err
	}
	if len(content) > 0 && content[len(content)-1] != '\n' {
		fmt.Fprintln(w)
	}
	return nil
}

func runUpload(create bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.NArg() < 2 {
			return fmt.Errorf("usage: wstore %s <local> <remote>", cmd.Name)
		}
		local, remote := cmd.Args().Get(0), cmd.Args().Get(1)

		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		verb, past := "updating", "updated"
		upload := c.Put
		if create {
			verb, past = "creating", "created"
			upload = c.Post
		}
		if _, err := upload(ctx, local, remote); err != nil {
			return fmt.Errorf("%s file: %w", verb, err)
		}
		fmt.Fprintf(cmd.Root().Writer, "File %s %s successfully at %s\n", local, past, remote)
		return nil
	}
}

func runDelete(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: wstore delete <remote>")
	}
	remote := cmd.Args().Get(0)

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	res, err := c.Delete(ctx, remote)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, []byte(res.Message+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
	}
	fmt.Fprintf(cmd.Root().Writer, "File %s deleted successfully\n", remote)
	return nil
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "wstore",
		Usage:     "Command-line client for a wstore server",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Aliases: []string{"b"},
				Usage:   "Base URL of the wstore server",
				Value:   client.DefaultBaseURL,
				Sources: cli.EnvVars("WSTORE_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "auth",
				Aliases: []string{"a"},
				Usage:   "Credential in the form username:password",
				Sources: cli.EnvVars("WSTORE_AUTH"),
			},
			&cli.BoolFlag{
				Name:    "include",
				Aliases: []string{"i"},
				Usage:   "Print response headers before the output",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the response to this file instead of stdout",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Download a file or list a directory",
				ArgsUsage: "<remote> [local]",
				Action:    runGet,
			},
			{
				Name:      "post",
				Usage:     "Create a new file on the server",
				ArgsUsage: "<local> <remote>",
				Action:    runUpload(true),
			},
			{
				Name:      "put",
				Usage:     "Create or replace a file on the server",
				ArgsUsage: "<local> <remote>",
				Action:    runUpload(false),
			},
			{
				Name:      "delete",
				Usage:     "Delete a file from the server",
				ArgsUsage: "<remote>",
				Action:    runDelete,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error %v\n", err)
		stop()
		os.Exit(1)
	}
}
