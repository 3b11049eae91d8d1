package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/strawberry/internal/errs"
	"github.com/lanikai/strawberry/internal/gateway"
	"github.com/lanikai/strawberry/internal/logging"
	"github.com/lanikai/strawberry/internal/media"
	"github.com/lanikai/strawberry/internal/media/h264"
	"github.com/lanikai/strawberry/internal/pacer"
	"github.com/lanikai/strawberry/internal/rtp"
)

var log = logging.DefaultLogger.WithTag("main")

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		fmt.Println("strawberry (unreleased)")
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return err
	}

	userID, err := deriveUserID(cfg.User.Token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gatewayURL, err := gateway.GatewayURL(ctx, flagAPIBase)
	if err != nil {
		return err
	}

	client, err := gateway.NewClient(ctx, flagAPIBase, gatewayURL, cfg.User.Token)
	if err != nil {
		return err
	}
	defer client.Close()

	sess, err := client.JoinVoiceChannel(ctx, userID, cfg.Voice.GuildID, cfg.Voice.ChannelID, cfg.Voice.PreferredRegion)
	if err != nil {
		return err
	}
	defer sess.Close()
	log.Info("voice session ready: audio ssrc %d, video ssrc %d", sess.AudioSSRC(), sess.VideoSSRC())

	if flagInput == "" {
		log.Info("no --input given; joined voice channel without streaming media")
		<-ctx.Done()
		return nil
	}

	transcoder, err := media.NewFFmpegTranscoder(flagInput, media.TranscoderConfig{
		Width: 1280, Height: 720, Framerate: 30, AudioBitrate: 64,
	})
	if err != nil {
		return err
	}
	defer transcoder.Close()

	if err := sess.SetSpeaking(true); err != nil {
		return err
	}

	opusWriter := rtp.NewOpusWriter(sess.Transport(), sess.AudioSSRC())
	h264Writer := rtp.NewH264Writer(sess.Transport(), sess.VideoSSRC())

	errCh := make(chan error, 2)
	go func() {
		errCh <- pacer.RunOpus(ctx, transcoder.Audio.Packets(), nil, opusWriter.SendFrame)
	}()
	go func() {
		errCh <- pacer.RunH264(ctx, transcoder.Video.AccessUnits(), 30, nil, func(au h264.AccessUnit) error {
			return h264Writer.SendAccessUnit(au)
		})
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) && !errs.Is(err, errs.SourceError) {
			return err
		}
	case <-ctx.Done():
	}
	return nil
}
