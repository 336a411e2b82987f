package domain

// FrameRandomSize は平文フレーム先頭の乱数部のバイト数。
const FrameRandomSize = 16

// FrameLengthSize はメッセージ長フィールドのバイト数（ビッグエンディアン）。
const FrameLengthSize = 4

// Frame はAES平文の内部構造 random(16) || length(4) || message || receiveID を表す。
// 暗号化のたびに生成され、復号後は検証が済み次第破棄される。
type Frame struct {
	Random    [FrameRandomSize]byte
	Message   []byte
	ReceiveID string
}
