package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PayloadTypePCMU G.711 μ-law 的RTP负载类型
const PayloadTypePCMU = 0

// ErrNotRTP 数据不是RTP包
var ErrNotRTP = errors.New("不是RTP数据包")

// RTPPacket 从抓包中提取的一个RTP包
type RTPPacket struct {
	Captured    time.Time
	SSRC        uint32
	Sequence    uint16
	Timestamp   uint32
	PayloadType uint8
	Payload     []byte
}

// PCAPReader 用于读取PCAP文件并提取RTP音频
type PCAPReader struct {
	filename string
	file     *os.File
	reader   *pcapgo.Reader
}

// NewPCAPReader 创建新的PCAP读取器
func NewPCAPReader(filename string) (*PCAPReader, error) {
	r := &PCAPReader{filename: filename}
	if err := r.reopen(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close 关闭PCAP读取器
func (r *PCAPReader) Close() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// reopen 重新打开PCAP文件，从头读取
func (r *PCAPReader) reopen() error {
	r.Close()

	file, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("打开PCAP文件失败: %v", err)
	}
	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("解析PCAP文件头失败: %v", err)
	}

	r.file = file
	r.reader = reader
	return nil
}

// ReadRTP 读取全部UDP承载的RTP包，payloadType小于0时不过滤负载类型
func (r *PCAPReader) ReadRTP(payloadType int) ([]RTPPacket, error) {
	if err := r.reopen(); err != nil {
		return nil, err
	}

	var packets []RTPPacket
	source := gopacket.NewPacketSource(r.reader, r.reader.LinkType())
	for {
		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return packets, fmt.Errorf("读取数据包失败: %v", err)
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		rtp, err := ParseRTP(udp.Payload)
		if err != nil {
			continue
		}
		if payloadType >= 0 && int(rtp.PayloadType) != payloadType {
			continue
		}
		rtp.Captured = packet.Metadata().Timestamp
		packets = append(packets, rtp)
	}

	return packets, nil
}

// ReadAudio 按抓包顺序拼接指定负载类型的音频
func (r *PCAPReader) ReadAudio(payloadType int) ([]byte, error) {
	packets, err := r.ReadRTP(payloadType)
	if err != nil {
		return nil, err
	}

	var audio []byte
	for _, p := range packets {
		audio = append(audio, p.Payload...)
	}
	return audio, nil
}

// ParseRTP 解析RTP头部，返回去掉头部、扩展和填充后的负载
func ParseRTP(data []byte) (RTPPacket, error) {
	if len(data) < 12 || data[0]>>6 != 2 {
		return RTPPacket{}, ErrNotRTP
	}

	padding := data[0]&0x20 != 0
	extension := data[0]&0x10 != 0
	csrcCount := int(data[0] & 0x0F)

	headerLen := 12 + 4*csrcCount
	if len(data) < headerLen {
		return RTPPacket{}, ErrNotRTP
	}
	if extension {
		if len(data) < headerLen+4 {
			return RTPPacket{}, ErrNotRTP
		}
		headerLen += 4 + int(binary.BigEndian.Uint16(data[headerLen+2:]))*4
		if len(data) < headerLen {
			return RTPPacket{}, ErrNotRTP
		}
	}

	end := len(data)
	if padding {
		pad := int(data[end-1])
		if pad == 0 || end-pad < headerLen {
			return RTPPacket{}, ErrNotRTP
		}
		end -= pad
	}

	return RTPPacket{
		PayloadType: data[1] & 0x7F,
		Sequence:    binary.BigEndian.Uint16(data[2:4]),
		Timestamp:   binary.BigEndian.Uint32(data[4:8]),
		SSRC:        binary.BigEndian.Uint32(data[8:12]),
		Payload:     data[headerLen:end],
	}, nil
}
