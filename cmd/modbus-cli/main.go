// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

// Command modbus-cli is a small RTU-only exerciser for the package: one
// subcommand per supported function code, talking to a single slave over
// one serial device.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/openrtu/modbus"
)

func main() {
	app := &cli.App{
		Name:  "modbus-cli",
		Usage: "Command-line tool for Modbus/RTU communication",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "device",
				Aliases:  []string{"d"},
				Usage:    "Serial device, e.g. /dev/ttyUSB0",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "slave-id",
				Aliases: []string{"s"},
				Usage:   "Modbus slave address",
				Value:   1,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Per-transaction timeout",
				Value:   time.Second,
			},
			&cli.IntFlag{
				Name:  "baud",
				Usage: "Baud rate",
				Value: 19200,
			},
			&cli.IntFlag{
				Name:  "stop-bits",
				Usage: "Stop bits (1 or 2)",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "parity",
				Usage: "Parity: none, odd, even",
				Value: "even",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Emit a hex trace of every frame",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "read-coils",
				Usage: "Read coils (function code 1)",
				Flags: startCountFlags(),
				Action: readBitsAction(func(ctx context.Context, b *modbus.Bus, start, count uint16) ([]byte, error) {
					return b.ReadCoils(ctx, start, count)
				}),
			},
			{
				Name:  "read-discrete-inputs",
				Usage: "Read discrete inputs (function code 2)",
				Flags: startCountFlags(),
				Action: readBitsAction(func(ctx context.Context, b *modbus.Bus, start, count uint16) ([]byte, error) {
					return b.ReadDiscreteInputs(ctx, start, count)
				}),
			},
			{
				Name:  "read-holding-registers",
				Usage: "Read holding registers (function code 3)",
				Flags: startCountFlags(),
				Action: readRegistersAction(func(ctx context.Context, b *modbus.Bus, start, count uint16) ([]uint16, error) {
					return b.ReadHoldingRegisters(ctx, start, count)
				}),
			},
			{
				Name:  "read-input-registers",
				Usage: "Read input registers (function code 4)",
				Flags: startCountFlags(),
				Action: readRegistersAction(func(ctx context.Context, b *modbus.Bus, start, count uint16) ([]uint16, error) {
					return b.ReadInputRegisters(ctx, start, count)
				}),
			},
			{
				Name:  "write-single-coil",
				Usage: "Write a single coil (function code 5)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "address", Required: true},
					&cli.BoolFlag{Name: "on"},
				},
				Action: func(c *cli.Context) error {
					b, err := openBus(c)
					if err != nil {
						return err
					}
					defer b.Close()
					return b.WriteSingleCoil(c.Context, uint16(c.Uint("address")), c.Bool("on"))
				},
			},
			{
				Name:  "write-single-register",
				Usage: "Write a single holding register (function code 6)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "address", Required: true},
					&cli.UintFlag{Name: "value", Required: true},
				},
				Action: func(c *cli.Context) error {
					b, err := openBus(c)
					if err != nil {
						return err
					}
					defer b.Close()
					return b.WriteSingleRegister(c.Context, uint16(c.Uint("address")), uint16(c.Uint("value")))
				},
			},
			{
				Name:  "read-exception-status",
				Usage: "Read exception status (function code 7)",
				Action: func(c *cli.Context) error {
					b, err := openBus(c)
					if err != nil {
						return err
					}
					defer b.Close()
					status, err := b.ReadExceptionStatus(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("0x%02X\n", status)
					return nil
				},
			},
			{
				Name:  "write-multiple-coils",
				Usage: "Write multiple coils (function code 15)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "address", Required: true},
					&cli.StringFlag{Name: "values", Required: true, Usage: "comma-separated 0/1 list, e.g. 1,0,1,1"},
				},
				Action: func(c *cli.Context) error {
					b, err := openBus(c)
					if err != nil {
						return err
					}
					defer b.Close()
					values, err := parseCoilValues(c.String("values"))
					if err != nil {
						return fmt.Errorf("parsing values: %w", err)
					}
					return b.WriteMultipleCoils(c.Context, uint16(c.Uint("address")), values)
				},
			},
			{
				Name:  "write-multiple-registers",
				Usage: "Write multiple holding registers (function code 16)",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "address", Required: true},
					&cli.StringFlag{Name: "values", Required: true, Usage: "comma-separated hex or decimal list, e.g. 0x0A,12,0xFF"},
				},
				Action: func(c *cli.Context) error {
					b, err := openBus(c)
					if err != nil {
						return err
					}
					defer b.Close()
					regs, err := parseRegisterValues(c.String("values"))
					if err != nil {
						return fmt.Errorf("parsing values: %w", err)
					}
					return b.WriteMultipleRegisters(c.Context, uint16(c.Uint("address")), regs)
				},
			},
			{
				Name:  "report-slave-id",
				Usage: "Report slave ID (function code 17)",
				Action: func(c *cli.Context) error {
					b, err := openBus(c)
					if err != nil {
						return err
					}
					defer b.Close()
					id, err := b.ReportSlaveID(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("id=0x%02X running=%v extra=% x\n", id.ID, id.RunIndicator, id.Extra)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func startCountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: "start", Required: true},
		&cli.UintFlag{Name: "count", Required: true},
		&cli.StringFlag{Name: "format", Usage: "decimal or hex", Value: "hex"},
	}
}

func readBitsAction(read func(context.Context, *modbus.Bus, uint16, uint16) ([]byte, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		b, err := openBus(c)
		if err != nil {
			return err
		}
		defer b.Close()

		start := uint16(c.Uint("start"))
		count := uint16(c.Uint("count"))
		results, err := read(c.Context, b, start, count)
		if err != nil {
			return fmt.Errorf("reading bits: %w", err)
		}
		for i := uint16(0); i < count; i++ {
			fmt.Printf("0x%04X: %d\n", start+i, boolBit(results[i]))
		}
		return nil
	}
}

func readRegistersAction(read func(context.Context, *modbus.Bus, uint16, uint16) ([]uint16, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		b, err := openBus(c)
		if err != nil {
			return err
		}
		defer b.Close()

		start := uint16(c.Uint("start"))
		count := uint16(c.Uint("count"))
		format := c.String("format")
		results, err := read(c.Context, b, start, count)
		if err != nil {
			return fmt.Errorf("reading registers: %w", err)
		}
		for i, v := range results {
			if format == "decimal" {
				fmt.Printf("0x%04X: %d\n", start+uint16(i), v)
			} else {
				fmt.Printf("0x%04X: 0x%04X\n", start+uint16(i), v)
			}
		}
		return nil
	}
}

func boolBit(b byte) int {
	if b != 0 {
		return 1
	}
	return 0
}

// parseCoilValues parses a comma-separated list of 0/1 tokens into the
// one-byte-per-coil form WriteMultipleCoils expects.
func parseCoilValues(s string) ([]byte, error) {
	fields := strings.Split(s, ",")
	values := make([]byte, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", f, err)
		}
		if n != 0 {
			values[i] = 1
		}
	}
	return values, nil
}

// parseRegisterValues parses a comma-separated list of decimal or
// 0x-prefixed hex tokens into 16-bit register values.
func parseRegisterValues(s string) ([]uint16, error) {
	fields := strings.Split(s, ",")
	regs := make([]uint16, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 0, 16)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", f, err)
		}
		regs[i] = uint16(n)
	}
	return regs, nil
}

func openBus(c *cli.Context) (*modbus.Bus, error) {
	opts := []modbus.Option{
		modbus.WithBaudRate(c.Int("baud")),
		modbus.WithStopBits(parseStopBits(c.Int("stop-bits"))),
		modbus.WithParity(parseParity(c.String("parity"))),
		modbus.WithTimeout(c.Duration("timeout")),
		modbus.WithSlaveID(byte(c.Int("slave-id"))),
	}
	if c.Bool("debug") {
		opts = append(opts, modbus.WithDebug(log.Default()))
	}
	return modbus.Open(c.String("device"), opts...)
}

func parseStopBits(bits int) modbus.StopBits {
	if bits == 2 {
		return modbus.TwoStopBits
	}
	return modbus.OneStopBit
}

func parseParity(parity string) modbus.Parity {
	switch parity {
	case "none":
		return modbus.NoParity
	case "odd":
		return modbus.OddParity
	default:
		return modbus.EvenParity
	}
}
