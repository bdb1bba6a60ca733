// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/knxstat/pkg/plugin/wsmirror"
)

const passwordEnv = "KNXSTAT_MIRROR_PASSWORD"

var (
	mirrorURL         string
	mirrorUsername    string
	mirrorNoSSLVerify bool
)

// getPassword retrieves the mirror password from environment or prompts user
func getPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Mirror password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openMirror dials the websocket mirror named by --mirror
func openMirror(ctx context.Context) (*wsmirror.Mirror, error) {
	password := ""
	if mirrorUsername != "" {
		var err error
		password, err = getPassword()
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	return wsmirror.Dial(ctx, wsmirror.Options{
		URL:           mirrorURL,
		Username:      mirrorUsername,
		Password:      password,
		SkipTLSVerify: mirrorNoSSLVerify,
	})
}
