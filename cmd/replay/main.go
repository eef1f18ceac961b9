// replay 把抓包中的RTP音频作为一通模拟来电推送到媒体流网关
package main

import (
	"encoding/base64"
	"flag"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ai_voice_bot/internal/models"
	"ai_voice_bot/internal/services/synthesis"
	"ai_voice_bot/internal/utils"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	pcapFile := flag.String("pcap", "", "PCAP文件路径")
	gateway := flag.String("url", "ws://localhost:8000/ws/audio-stream", "媒体流网关地址")
	payloadType := flag.Int("pt", utils.PayloadTypePCMU, "RTP负载类型，-1表示不过滤")
	chunkSize := flag.Int("chunk", 160, "每帧音频字节数")
	realtime := flag.Bool("realtime", true, "按8kHz实时节奏发送")
	linger := flag.Duration("linger", 5*time.Second, "音频发送完后等待回复的时间")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatalf("必须指定 -pcap")
	}

	reader, err := utils.NewPCAPReader(*pcapFile)
	if err != nil {
		log.Fatalf("打开抓包失败: %v", err)
	}
	audio, err := reader.ReadAudio(*payloadType)
	reader.Close()
	if err != nil {
		log.Fatalf("提取RTP音频失败: %v", err)
	}
	log.Printf("提取到 %d 字节音频", len(audio))

	callSid := "CA" + uuid.NewString()
	streamSid := "MZ" + uuid.NewString()
	conn, _, err := websocket.DefaultDialer.Dial(*gateway+"/"+callSid, nil)
	if err != nil {
		log.Fatalf("连接网关失败: %v", err)
	}
	defer conn.Close()

	go readReplies(conn)

	send := func(frame models.StreamFrame) {
		if err := conn.WriteJSON(frame); err != nil {
			log.Fatalf("发送帧失败: %v", err)
		}
	}

	send(models.StreamFrame{Event: models.EventConnected})
	send(models.StreamFrame{
		Event:     models.EventStart,
		StreamSid: streamSid,
		Start: &models.StartPayload{
			StreamSid:   streamSid,
			CallSid:     callSid,
			Tracks:      []string{"inbound"},
			MediaFormat: &models.MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 8000, Channels: 1},
		},
	})

	// 8kHz μ-law 每字节 125μs
	interval := time.Duration(*chunkSize) * 125 * time.Microsecond
	for i, chunk := range synthesis.Chunk(audio, *chunkSize) {
		send(models.StreamFrame{
			Event:          models.EventMedia,
			SequenceNumber: strconv.Itoa(i + 3),
			StreamSid:      streamSid,
			Media: &models.MediaPayload{
				Track:   "inbound",
				Chunk:   strconv.Itoa(i + 1),
				Payload: base64.StdEncoding.EncodeToString(chunk),
			},
		})
		if *realtime {
			time.Sleep(interval)
		}
	}

	time.Sleep(*linger)
	send(models.StreamFrame{
		Event:     models.EventStop,
		StreamSid: streamSid,
		Stop:      &models.StopPayload{CallSid: callSid},
	})
	log.Printf("[%s] 回放结束", callSid)
}

// readReplies 统计网关回传的音频
func readReplies(conn *websocket.Conn) {
	total := 0
	for {
		var frame models.StreamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("读取回复失败: %v", err)
			}
			return
		}
		if frame.Media == nil {
			continue
		}
		audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
		if err != nil {
			log.Printf("解码回复音频失败: %v", err)
			continue
		}
		total += len(audio)
		log.Printf("收到回复音频 %d 字节，累计 %d 字节", len(audio), total)
	}
}
