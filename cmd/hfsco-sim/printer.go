package main

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/cyberinferno/go-hfsco/audiobus"
	"github.com/cyberinferno/go-hfsco/scolink"
)

var (
	stepColor  = color.New(color.FgCyan, color.Bold)
	stateColor = color.New(color.FgGreen)
	busColor   = color.New(color.FgMagenta)
	audioColor = color.New(color.FgBlue, color.Bold)
)

// printStep prints a scenario step.
func printStep(format string, args ...any) {
	stepColor.Println("==> " + fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Println("    " + fmt.Sprintf(format, args...))
}

func printState(snap scolink.Snapshot) {
	stateColor.Printf("    state %s handle %s codec %s\n", snap.State, snap.Handle, snap.Codec)
}

func printNotification(n audiobus.Notification) {
	busColor.Printf("    [bus] %s %s\n", n.Kind, n.Peer)
}

func printAudio(ev scolink.AudioEvent) {
	audioColor.Printf("    [audio] %s %s %s\n", ev.Kind, ev.Peer, ev.Codec)
}

// printWarn prints a warning to the screen.
func printWarn(message string) {
	color.New(color.FgYellow, color.Bold).Println("[-] " + message)
}

// printError prints an error to the screen.
func printError(err error) {
	color.New(color.FgRed, color.Bold).Println("[!] " + err.Error())
}
