package command

import (
	"fmt"
	"strconv"
)

// Names of the commands the transport builds or interprets.
const (
	NameClientInitIV         = "clientinitiv"
	NameInitIVExpand         = "initivexpand"
	NameInitIVExpand2        = "initivexpand2"
	NameClientEk             = "clientek"
	NameClientInit           = "clientinit"
	NameInitServer           = "initserver"
	NameChannelList          = "channellist"
	NameChannelListFinished  = "channellistfinished"
	NameClientMove           = "clientmove"
	NameClientDisconnect     = "clientdisconnect"
	NameNotifyClientLeftView = "notifyclientleftview"
	NameNotifyTextMessage    = "notifytextmessage"
	NameSendTextMessage      = "sendtextmessage"
	NameError                = "error"
)

func expectName(c Command, name string) error {
	if c.Name != name {
		return fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedName, name, c.Name)
	}
	return nil
}

type ClientInitIV struct {
	Alpha string // base64
	Omega string // public key string
	IP    string
}

func (c ClientInitIV) Command() Command {
	return New(NameClientInitIV).
		Add("alpha", c.Alpha).
		Add("omega", c.Omega).
		Add("ot", "1").
		Add("ip", c.IP).
		Build()
}

type InitIVExpand struct {
	Alpha string
	Beta  string
	Omega string
}

func ParseInitIVExpand(c Command) (InitIVExpand, error) {
	if err := expectName(c, NameInitIVExpand); err != nil {
		return InitIVExpand{}, err
	}
	p := c.Params()
	var out InitIVExpand
	var err error
	if out.Alpha, err = p.Require("alpha"); err != nil {
		return InitIVExpand{}, err
	}
	if out.Beta, err = p.Require("beta"); err != nil {
		return InitIVExpand{}, err
	}
	if out.Omega, err = p.Require("omega"); err != nil {
		return InitIVExpand{}, err
	}
	return out, nil
}

func (e InitIVExpand) Command() Command {
	return New(NameInitIVExpand).Add("alpha", e.Alpha).Add("beta", e.Beta).Add("omega", e.Omega).Build()
}

type InitIVExpand2 struct {
	License string
	Beta    string
	Omega   string
	Proof   string
}

func ParseInitIVExpand2(c Command) (InitIVExpand2, error) {
	if err := expectName(c, NameInitIVExpand2); err != nil {
		return InitIVExpand2{}, err
	}
	p := c.Params()
	var out InitIVExpand2
	var err error
	if out.License, err = p.Require("l"); err != nil {
		return InitIVExpand2{}, err
	}
	if out.Beta, err = p.Require("beta"); err != nil {
		return InitIVExpand2{}, err
	}
	if out.Omega, err = p.Require("omega"); err != nil {
		return InitIVExpand2{}, err
	}
	out.Proof = p["proof"]
	return out, nil
}

func (e InitIVExpand2) Command() Command {
	return New(NameInitIVExpand2).
		Add("l", e.License).
		Add("beta", e.Beta).
		Add("omega", e.Omega).
		AddFlag("ot").
		Add("proof", e.Proof).
		Build()
}

type ClientEk struct {
	Ek    string
	Proof string
}

func (c ClientEk) Command() Command {
	return New(NameClientEk).Add("ek", c.Ek).Add("proof", c.Proof).Build()
}

func ParseClientEk(c Command) (ClientEk, error) {
	if err := expectName(c, NameClientEk); err != nil {
		return ClientEk{}, err
	}
	p := c.Params()
	ek, err := p.Require("ek")
	if err != nil {
		return ClientEk{}, err
	}
	return ClientEk{Ek: ek, Proof: p["proof"]}, nil
}

type ClientInit struct {
	Nickname               string
	Version                string
	Platform               string
	VersionSign            string
	DefaultChannel         string
	DefaultChannelPassword string // already hashed
	ServerPassword         string // already hashed
	KeyOffset              uint64
	HardwareID             string
}

func (c ClientInit) Command() Command {
	return New(NameClientInit).
		Add("client_nickname", c.Nickname).
		Add("client_version", c.Version).
		Add("client_platform", c.Platform).
		Add("client_input_hardware", "1").
		Add("client_output_hardware", "1").
		Add("client_default_channel", c.DefaultChannel).
		Add("client_default_channel_password", c.DefaultChannelPassword).
		Add("client_server_password", c.ServerPassword).
		AddFlag("client_meta_data").
		Add("client_version_sign", c.VersionSign).
		AddUint("client_key_offset", c.KeyOffset).
		AddFlag("client_nickname_phonetic").
		AddFlag("client_default_token").
		Add("hwid", c.HardwareID).
		Build()
}

func ParseClientInit(c Command) (ClientInit, error) {
	if err := expectName(c, NameClientInit); err != nil {
		return ClientInit{}, err
	}
	p := c.Params()
	offset, err := p.Uint("client_key_offset", 64)
	if err != nil {
		return ClientInit{}, err
	}
	return ClientInit{
		Nickname:               p["client_nickname"],
		Version:                p["client_version"],
		Platform:               p["client_platform"],
		VersionSign:            p["client_version_sign"],
		DefaultChannel:         p["client_default_channel"],
		DefaultChannelPassword: p["client_default_channel_password"],
		ServerPassword:         p["client_server_password"],
		KeyOffset:              offset,
		HardwareID:             p["hwid"],
	}, nil
}

type InitServer struct {
	ClientID   uint16
	ServerName string
	Params     Params
}

func ParseInitServer(c Command) (InitServer, error) {
	if err := expectName(c, NameInitServer); err != nil {
		return InitServer{}, err
	}
	p := c.Params()
	id, err := p.Uint("aclid", 16)
	if err != nil {
		return InitServer{}, err
	}
	return InitServer{ClientID: uint16(id), ServerName: p["virtualserver_name"], Params: p}, nil
}

type Channel struct {
	ID       uint64
	ParentID uint64
	Name     string
}

// ParseChannelList returns every channel entry of a channellist line.
func ParseChannelList(c Command) ([]Channel, error) {
	if err := expectName(c, NameChannelList); err != nil {
		return nil, err
	}
	channels := make([]Channel, 0, len(c.Entries))
	for _, p := range c.Entries {
		id, err := p.Uint("cid", 64)
		if err != nil {
			return nil, err
		}
		var parent uint64
		if p.Has("cpid") {
			if parent, err = p.Uint("cpid", 64); err != nil {
				return nil, err
			}
		}
		channels = append(channels, Channel{ID: id, ParentID: parent, Name: p["channel_name"]})
	}
	return channels, nil
}

type ClientMove struct {
	ChannelID uint64
	ClientID  uint16
	Password  string
}

func (m ClientMove) Command() Command {
	b := New(NameClientMove).
		AddUint("cid", m.ChannelID).
		AddUint("clid", uint64(m.ClientID))
	if m.Password != "" {
		b.Add("cpw", m.Password)
	}
	return b.Build()
}

type ClientDisconnect struct {
	ReasonID  int
	ReasonMsg string
}

func (d ClientDisconnect) Command() Command {
	b := New(NameClientDisconnect).Add("reasonid", strconv.Itoa(d.ReasonID))
	if d.ReasonMsg != "" {
		b.Add("reasonmsg", d.ReasonMsg)
	}
	return b.Build()
}

type NotifyClientLeftView struct {
	ClientID  uint16
	ReasonID  int
	ReasonMsg string
}

func ParseNotifyClientLeftView(c Command) ([]NotifyClientLeftView, error) {
	if err := expectName(c, NameNotifyClientLeftView); err != nil {
		return nil, err
	}
	out := make([]NotifyClientLeftView, 0, len(c.Entries))
	for _, p := range c.Entries {
		id, err := p.Uint("clid", 16)
		if err != nil {
			return nil, err
		}
		reason, _ := strconv.Atoi(p["reasonid"])
		out = append(out, NotifyClientLeftView{ClientID: uint16(id), ReasonID: reason, ReasonMsg: p["reasonmsg"]})
	}
	return out, nil
}

// Text message target modes.
const (
	TargetClient  = 1
	TargetChannel = 2
	TargetServer  = 3
)

type TextMessage struct {
	TargetMode  int
	Target      uint64
	Message     string
	InvokerID   uint16
	InvokerName string
	InvokerUID  string
}

func ParseTextMessage(c Command) (TextMessage, error) {
	if err := expectName(c, NameNotifyTextMessage); err != nil {
		return TextMessage{}, err
	}
	p := c.Params()
	mode, err := p.Uint("targetmode", 8)
	if err != nil {
		return TextMessage{}, err
	}
	msg, err := p.Require("msg")
	if err != nil {
		return TextMessage{}, err
	}
	var invoker uint64
	if p.Has("invokerid") {
		if invoker, err = p.Uint("invokerid", 16); err != nil {
			return TextMessage{}, err
		}
	}
	var target uint64
	if p.Has("target") {
		if target, err = p.Uint("target", 64); err != nil {
			return TextMessage{}, err
		}
	}
	return TextMessage{
		TargetMode:  int(mode),
		Target:      target,
		Message:     msg,
		InvokerID:   uint16(invoker),
		InvokerName: p["invokername"],
		InvokerUID:  p["invokeruid"],
	}, nil
}

// SendTextMessage is the outgoing counterpart of TextMessage.
type SendTextMessage struct {
	TargetMode int
	Target     uint64
	Message    string
}

func (m SendTextMessage) Command() Command {
	b := New(NameSendTextMessage).Add("targetmode", strconv.Itoa(m.TargetMode))
	if m.TargetMode == TargetClient {
		b.AddUint("target", m.Target)
	}
	return b.Add("msg", m.Message).Build()
}

// ErrorLine is the server's reply status, "error id=0 msg=ok" on success.
type ErrorLine struct {
	ID      int
	Message string
}

func (e ErrorLine) OK() bool {
	return e.ID == 0
}

func ParseErrorLine(c Command) (ErrorLine, error) {
	if err := expectName(c, NameError); err != nil {
		return ErrorLine{}, err
	}
	p := c.Params()
	id, err := p.Uint("id", 32)
	if err != nil {
		return ErrorLine{}, err
	}
	return ErrorLine{ID: int(id), Message: p["msg"]}, nil
}
