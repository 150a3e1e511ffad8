package securemsg

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/cryptobyte"

	"code.vaulink.org/golang/internal/observability"
	"code.vaulink.org/golang/internal/transport"
)

const (
	testKEnc = "68406B4162100563D9C901A6154D2901"
	testKMac = "73FF268784F72AF833FDC9464049AFC9"
)

func newTestKeys(t *testing.T) *KeySet {
	keys, err := NewKeySet(mustHex(t, testKEnc), mustHex(t, testKMac))
	if nil != err {
		t.Fatalf("Failed NewKeySet, got error %v", err)
	}
	t.Cleanup(keys.Destroy)
	return keys
}

func TestEncryptCommandVectors(t *testing.T) {
	data := mustHex(t, "05060708090a")
	testcases := []struct {
		name string
		cmd  CommandAPDU
		out  string
	}{
		{
			name: "case1",
			cmd:  CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04},
			out:  "0D0203040A8E08D92B4FDDC2BBED8C00",
		},
		{
			name: "case2s",
			cmd:  CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04, Ne: 127},
			out:  "0D02030400000D97017F8E0871D8E0418DAE20F30000",
		},
		{
			name: "case2e",
			cmd:  CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04, Ne: 257},
			out:  "0D02030400000E970201018E089F3EDDFBB1D3971D0000",
		},
		{
			name: "case3s",
			cmd:  CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04, Data: data},
			out:  "0D0203041D871101496C26D36306679609665A385C54DB378E08E7AAD918F260D8EF00",
		},
		{
			name: "case4s",
			cmd:  CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04, Data: data, Ne: 127},
			out:  "0D020304000020871101496C26D36306679609665A385C54DB3797017F8E0863D541F262BD445A0000",
		},
		{
			name: "case4e",
			cmd:  CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04, Data: make([]byte, 256), Ne: 127},
			out: "0D02030400012287820111013297D4AA774AB26AF8AD539C0A829BCA4D222D3EE2DB100CF86D7DB5A1FAC12B76" +
				"23328DEFE3F6FDD41A993AC917BC17B364C3DD24740079DE60A3D0231A7185D36A77D37E147025913ADA00CD07" +
				"736CFDE0DB2E0BB09B75C5773607E54A9D84181ACBC6F7726762A8BCE324C0B330548114154A13EDDBFF6DCBC3" +
				"773DCA9A8494404BE4A5654273F9C2B9EBE1BD615CB39FFD0D3F2A0EEA29AA10B810D53EDB550FB741A68CC6B0" +
				"BDF928F9EB6BC238416AACB4CF3002E865D486CF42D762C86EEBE6A2B25DECE2E88D569854A07D3F146BC134BA" +
				"F08B6EDCBEBDFF47EBA6AC7B441A1642B03253B588C49B69ABBEC92BA1723B7260DE8AD6158873141AFA7C70CF" +
				"CF125BA1DF77CA48025D049FCEE497017F8E0856332C83EABDF93C0000",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			keys := newTestKeys(t)
			protected, err := NewCodec().EncryptCommand(tc.cmd, keys)
			if nil != err {
				t.Fatalf("Failed EncryptCommand, got error %v", err)
			}
			raw, err := protected.Bytes()
			if nil != err {
				t.Fatalf("Failed Bytes, got error %v", err)
			}
			if !bytes.Equal(mustHex(t, tc.out), raw) {
				t.Errorf("failed vector control, got %X", raw)
			}
		})
	}
}

func TestEncryptCommandRejectsProtected(t *testing.T) {
	keys := newTestKeys(t)
	codec := NewCodec()
	protected, err := codec.EncryptCommand(CommandAPDU{CLA: 0x01, INS: 0x02}, keys)
	if nil != err {
		t.Fatalf("Failed EncryptCommand, got error %v", err)
	}
	_, err = codec.EncryptCommand(protected, keys)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("protected command accepted, got error %v", err)
	}
	if !errors.Is(err, Error) {
		t.Errorf("error does not wrap Error, got %v", err)
	}
}

func TestDecryptResponseVectors(t *testing.T) {
	testcases := []struct {
		in  string
		out string
	}{
		{in: "990290008E08087631D746F872729000", out: "9000"},
		{in: "871101496c26d36306679609665a385c54db37990290008E08B7E9ED2A0C89FB3A9000", out: "05060708090a9000"},
	}

	for _, tc := range testcases {
		keys := newTestKeys(t)
		resp, err := ParseResponseAPDU(mustHex(t, tc.in))
		if nil != err {
			t.Fatalf("Failed ParseResponseAPDU, got error %v", err)
		}
		plain, err := NewCodec().DecryptResponse(resp, keys)
		if nil != err {
			t.Fatalf("Failed DecryptResponse %s, got error %v", tc.in, err)
		}
		if !bytes.Equal(mustHex(t, tc.out), plain.Bytes()) {
			t.Errorf("failed vector control, got %X", plain.Bytes())
		}
	}
}

func TestDecryptResponseInvalid(t *testing.T) {
	testcases := []struct {
		name string
		in   string
		err  error
	}{
		{name: "bad MAC", in: "871101496c26d36306679609665a385c54db37990290008E08A7E9ED2A0C89FB3A9000", err: ErrMacMismatch},
		{name: "missing DO99", in: "871101496c26d36306679609665a385c54db378E08B7E9ED2A0C89FB3A9000", err: ErrMalformed},
		{name: "missing SW", in: "871101496c26d36306679609665a385c54db37990290008E08B7E9ED2A0C89FB3A", err: ErrMalformed},
		{name: "missing DO8E", in: "871101496c26d36306679609665a385c54db37990290009000", err: ErrMalformed},
		{name: "bare SW", in: "9000", err: ErrMalformed},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			keys := newTestKeys(t)
			resp, err := ParseResponseAPDU(mustHex(t, tc.in))
			if nil != err {
				t.Fatalf("Failed ParseResponseAPDU, got error %v", err)
			}
			_, err = NewCodec().DecryptResponse(resp, keys)
			if !errors.Is(err, tc.err) {
				t.Errorf("failed error control, got %v", err)
			}
		})
	}
}

func TestMacMismatchClosesCodec(t *testing.T) {
	keys := newTestKeys(t)
	codec := NewCodec()
	resp, _ := ParseResponseAPDU(mustHex(t, "990290008E08187631D746F872729000"))
	_, err := codec.DecryptResponse(resp, keys)
	if !errors.Is(err, ErrMacMismatch) {
		t.Fatalf("failed MAC control, got %v", err)
	}
	if !codec.Closed() {
		t.Fatal("codec not closed")
	}
	_, err = codec.EncryptCommand(CommandAPDU{CLA: 0x01}, keys)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("closed codec used, got error %v", err)
	}
	_, err = codec.DecryptResponse(resp, keys)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("closed codec used, got error %v", err)
	}
}

func TestCounterOverflow(t *testing.T) {
	keys := newTestKeys(t)
	codec := NewCodec()
	for i := range codec.ssc {
		codec.ssc[i] = 0xFF
	}
	_, err := codec.EncryptCommand(CommandAPDU{CLA: 0x01}, keys)
	if !errors.Is(err, ErrCounterOverflow) {
		t.Fatalf("failed overflow control, got %v", err)
	}
	if !codec.Closed() {
		t.Error("codec not closed after overflow")
	}
}

func TestDestroyedKeySet(t *testing.T) {
	keys := newTestKeys(t)
	keys.Destroy()
	_, err := NewCodec().EncryptCommand(CommandAPDU{CLA: 0x01}, keys)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("destroyed KeySet used, got error %v", err)
	}

	if _, err = NewKeySet(make([]byte, 15), make([]byte, 16)); !errors.Is(err, ErrMalformed) {
		t.Errorf("invalid key size accepted, got error %v", err)
	}
}

// testCard answers protected commands with protected responses, sharing the host SSC sequence.
type testCard struct {
	t     *testing.T
	codec *Codec
	keys  *KeySet
	data  []byte
	sw    [2]byte
	cmds  [][]byte
}

func (self *testCard) answer(msg []byte) ([]byte, error) {
	self.cmds = append(self.cmds, msg)
	self.codec.increment()
	return sealResponse(self.t, self.codec, self.keys, self.data, self.sw[0], self.sw[1]), nil
}

// sealResponse increments card SSC & returns the protected response carrying data & sw.
func sealResponse(t *testing.T, card *Codec, keys *KeySet, data []byte, sw1, sw2 byte) []byte {
	encBlock, macBlock, err := keys.ciphers()
	if nil != err {
		t.Fatalf("Failed ciphers, got error %v", err)
	}
	card.increment()

	var dos cryptobyte.Builder
	if len(data) > 0 {
		ct := card.encrypt(encBlock, data)
		dos.AddASN1(tagCryptogram, func(b *cryptobyte.Builder) {
			b.AddUint8(paddedISO)
			b.AddBytes(ct)
		})
	}
	dos.AddASN1(tagStatus, func(b *cryptobyte.Builder) {
		b.AddUint8(sw1)
		b.AddUint8(sw2)
	})
	raw := dos.BytesOrPanic()

	macInput := append(append([]byte{}, card.ssc[:]...), padISO(raw, 16)...)
	mac, err := cmacSum(macBlock, macInput, macSize)
	if nil != err {
		t.Fatalf("Failed cmacSum, got error %v", err)
	}
	out := cryptobyte.NewBuilder(raw)
	out.AddASN1(tagMAC, func(b *cryptobyte.Builder) {
		b.AddBytes(mac)
	})

	return append(out.BytesOrPanic(), sw1, sw2)
}

func TestSessionTransceive(t *testing.T) {
	observability.SetTestDebugLogging(t)
	ctx := context.Background()
	keys := newTestKeys(t)
	session, err := NewSession(keys)
	if nil != err {
		t.Fatalf("Failed NewSession, got error %v", err)
	}

	card := &testCard{t: t, codec: NewCodec(), keys: keys, data: []byte("card data"), sw: [2]byte{0x90, 0x00}}
	link := transport.NewFuncTransport(card.answer)

	for i := range 3 {
		resp, err := session.Transceive(ctx, link, CommandAPDU{CLA: 0x00, INS: 0xB0, Ne: 9})
		if nil != err {
			t.Fatalf("Failed Transceive #%d, got error %v", i, err)
		}
		if 0x9000 != resp.SW() || "card data" != string(resp.Data) {
			t.Errorf("failed response control #%d, got %+v", i, resp)
		}
	}
	if 3 != len(card.cmds) || 0x0C != card.cmds[0][0] {
		t.Errorf("failed card commands control, got %X", card.cmds)
	}

	// a card answering with a stale SSC breaks the session
	card.codec.increment()
	_, err = session.Transceive(ctx, link, CommandAPDU{INS: 0xB0, Ne: 9})
	if !errors.Is(err, ErrMacMismatch) {
		t.Fatalf("failed desync control, got %v", err)
	}
	_, err = session.WrapCommandAPDU(CommandAPDU{INS: 0xB0})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("broken session used, got error %v", err)
	}

	session.Close()
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err = session.Transceive(cctx, link, CommandAPDU{INS: 0xB0}); nil == err {
		t.Error("Transceive succeeded with a done context")
	}
}

func TestNewCodecAt(t *testing.T) {
	keys := newTestKeys(t)
	cmd := CommandAPDU{CLA: 0x01, INS: 0x02, P1: 0x03, P2: 0x04}

	// running 1 command on a fresh Codec & starting at 1 yield the same second command
	fresh := NewCodec()
	fresh.EncryptCommand(cmd, keys)
	expected, err := fresh.EncryptCommand(cmd, keys)
	if nil != err {
		t.Fatalf("Failed EncryptCommand, got error %v", err)
	}
	got, err := NewCodecAt(1).EncryptCommand(cmd, keys)
	if nil != err {
		t.Fatalf("Failed EncryptCommand, got error %v", err)
	}
	if !bytes.Equal(expected.Data, got.Data) {
		t.Errorf("failed counter control, %X != %X", expected.Data, got.Data)
	}
}

func TestEncryptCommandFreshness(t *testing.T) {
	keys := newTestKeys(t)
	testcases := []struct {
		name string
		cmd  CommandAPDU
	}{
		{name: "header only", cmd: CommandAPDU{CLA: 0x00, INS: 0xB0, P1: 0x01, P2: 0x02}},
		{name: "with data", cmd: CommandAPDU{CLA: 0x00, INS: 0xD6, Data: []byte{1, 2, 3, 4}, Ne: 16}},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			codec := NewCodec()
			first, err := codec.EncryptCommand(tc.cmd, keys)
			if nil != err {
				t.Fatalf("Failed first EncryptCommand, got error %v", err)
			}
			second, err := codec.EncryptCommand(tc.cmd, keys)
			if nil != err {
				t.Fatalf("Failed second EncryptCommand, got error %v", err)
			}
			if bytes.Equal(first.Data, second.Data) {
				t.Errorf("same protected data for 2 sequential commands, got %X", first.Data)
			}
			if !bytes.Equal(first.Header(), second.Header()) {
				t.Errorf("failed header control, %X != %X", first.Header(), second.Header())
			}
		})
	}
}

func TestSessionLinkLost(t *testing.T) {
	ctx := context.Background()
	keys := newTestKeys(t)
	session, err := NewSession(keys)
	if nil != err {
		t.Fatalf("Failed NewSession, got error %v", err)
	}

	card := &testCard{t: t, codec: NewCodec(), keys: keys, data: []byte{0x01}, sw: [2]byte{0x90, 0x00}}
	link := transport.NewDropTransport(transport.NewFuncTransport(card.answer), 1)

	_, err = session.Transceive(ctx, link, CommandAPDU{INS: 0xB0, Ne: 1})
	if nil != err {
		t.Fatalf("Failed Transceive #0, got error %v", err)
	}
	_, err = session.Transceive(ctx, link, CommandAPDU{INS: 0xB0, Ne: 1})
	if !errors.Is(err, transport.LinkLostError) {
		t.Fatalf("failed link lost control, got error %v", err)
	}
	if !errors.Is(err, Error) {
		t.Errorf("error does not wrap Error, got %v", err)
	}
	if 1 != len(card.cmds) {
		t.Errorf("card received %d commands", len(card.cmds))
	}
}
