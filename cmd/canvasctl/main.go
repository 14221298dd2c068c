// canvasctl 是一个无界面的画布客户端：加入房间、可选地画一笔演示笔画，
// 然后把本地协调后的画面写成 PNG。
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/canvas"
	"collaborative-canvas/internal/client"
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/infra/discovery"
)

func main() {
	server := flag.String("server", "http://localhost:3000", "canvas server base URL")
	room := flag.String("room", "main", "room to join")
	out := flag.String("out", "canvas.png", "output PNG path")
	width := flag.Int("w", 1600, "canvas width")
	height := flag.Int("h", 900, "canvas height")
	demo := flag.Bool("demo", false, "draw a demo stroke before capturing")
	name := flag.String("name", "", "display name")
	wait := flag.Duration("wait", 500*time.Millisecond, "time to wait for updates before capturing")
	discover := flag.Bool("discover", false, "find a server on the LAN via mDNS instead of -server")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if err := run(*server, *room, *out, *name, *width, *height, *demo, *discover, *wait); err != nil {
		logrus.Fatalf("canvasctl: %v", err)
	}
}

func run(server, room, out, name string, width, height int, demo, discover bool, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if discover {
		peers, err := discovery.Browse(ctx, 3*time.Second)
		if err != nil {
			return fmt.Errorf("mDNS browse failed: %w", err)
		}
		if len(peers) == 0 {
			return fmt.Errorf("no canvas server found on the LAN")
		}
		server = "http://" + peers[0].Addr
		logrus.WithField("server", server).Info("Discovered canvas server")
	}

	wsURL, err := client.RoomURL(server, room)
	if err != nil {
		return err
	}
	recon := canvas.NewReconciler(width, height)
	session := client.NewSession(wsURL, recon)
	session.MaxReconnect = 10 * time.Second

	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Close()
	go func() { _ = session.Run(ctx) }()

	select {
	case <-session.Synced():
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for room state: %w", ctx.Err())
	}
	self := session.Self()
	logrus.WithFields(logrus.Fields{"id": self.ID, "room": room, "ops": len(recon.Ops())}).Info("Joined room")

	if name != "" {
		if err := session.SetName(name); err != nil {
			return err
		}
	}
	if demo {
		if err := drawDemo(session, self, width, height); err != nil {
			return err
		}
	}

	time.Sleep(wait)
	return writePNG(out, recon)
}

// drawDemo 画一条正弦曲线，按正常节奏发送预览和最终操作
func drawDemo(session *client.Session, self domain.Participant, width, height int) error {
	b := client.NewStrokeBuilder(self.ID, domain.ToolPencil, domain.Style{Color: self.Color, Width: 4})
	mid := float64(height) / 2
	amp := float64(height) / 4
	at := func(i int) domain.Point {
		x := float64(width) * float64(i) / 100
		return domain.Point{X: x, Y: mid + amp*math.Sin(float64(i)/100*2*math.Pi)}
	}

	b.Begin(at(0))
	for i := 1; i < 100; i++ {
		if preview, send := b.Move(at(i)); send {
			if err := session.SendStroke(preview); err != nil {
				return err
			}
		}
	}
	final, _ := b.End(at(100))
	return session.SendStroke(final)
}

func writePNG(path string, recon *canvas.Reconciler) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, recon.Frame()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"path": path, "ops": len(recon.Ops())}).Info("Canvas written")
	return nil
}
