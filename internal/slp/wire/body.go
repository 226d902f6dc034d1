package wire

import (
	"github.com/dep2p/go-slp/internal/slp/buffer"
	"github.com/dep2p/go-slp/pkg/types"
)

// Body 消息体
//
// 具体类型为 *SrvRqst、*SrvRply、*SrvReg、*SrvDeReg、*SrvAck、*AttrRqst、
// *AttrRply、*DAAdvert、*SrvTypeRqst、*SrvTypeRply、*SAAdvert 之一。
type Body interface {
	Function() types.FunctionID

	size() int
	encode(b *buffer.Buffer) error
	decode(b *buffer.Buffer) error
}

// PRListCarrier 以 PRList 开头的请求消息体
type PRListCarrier interface {
	Body
	PreviousResponders() string
	SetPreviousResponders(prlist string)
}

// newBody 按功能号创建空消息体
func newBody(f types.FunctionID) Body {
	switch f {
	case types.FuncSrvRqst:
		return &SrvRqst{}
	case types.FuncSrvRply:
		return &SrvRply{}
	case types.FuncSrvReg:
		return &SrvReg{}
	case types.FuncSrvDeReg:
		return &SrvDeReg{}
	case types.FuncSrvAck:
		return &SrvAck{}
	case types.FuncAttrRqst:
		return &AttrRqst{}
	case types.FuncAttrRply:
		return &AttrRply{}
	case types.FuncDAAdvert:
		return &DAAdvert{}
	case types.FuncSrvTypeRqst:
		return &SrvTypeRqst{}
	case types.FuncSrvTypeRply:
		return &SrvTypeRply{}
	case types.FuncSAAdvert:
		return &SAAdvert{}
	}
	return nil
}

// readErrorCode 读取应答错误码；非零时调用方应停止解析
func readErrorCode(b *buffer.Buffer) (types.WireError, error) {
	if b.Remaining() < 2 {
		return 0, ErrBodyTooShort
	}
	code, _ := b.ReadU16()
	return types.WireError(code), nil
}

// ============================================================================
//                              SrvRqst (1)
// ============================================================================

// SrvRqst 服务请求
type SrvRqst struct {
	PRList      string
	ServiceType string
	ScopeList   string
	Predicate   string
	SPI         string
}

func (*SrvRqst) Function() types.FunctionID { return types.FuncSrvRqst }

func (m *SrvRqst) PreviousResponders() string          { return m.PRList }
func (m *SrvRqst) SetPreviousResponders(prlist string) { m.PRList = prlist }

func (m *SrvRqst) size() int {
	return str16(m.PRList) + str16(m.ServiceType) + str16(m.ScopeList) + str16(m.Predicate) + str16(m.SPI)
}

func (m *SrvRqst) encode(b *buffer.Buffer) error {
	for _, s := range []string{m.PRList, m.ServiceType, m.ScopeList, m.Predicate, m.SPI} {
		if err := b.WriteString16(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *SrvRqst) decode(b *buffer.Buffer) error {
	if b.Remaining() < 10 {
		return ErrBodyTooShort
	}
	return readStrings(b, &m.PRList, &m.ServiceType, &m.ScopeList, &m.Predicate, &m.SPI)
}

// ============================================================================
//                              SrvRply (2)
// ============================================================================

// SrvRply 服务应答
type SrvRply struct {
	ErrorCode types.WireError
	URLs      []URLEntry
}

func (*SrvRply) Function() types.FunctionID { return types.FuncSrvRply }

func (m *SrvRply) size() int {
	if m.ErrorCode != 0 {
		return 2
	}
	n := 4
	for i := range m.URLs {
		n += m.URLs[i].size()
	}
	return n
}

func (m *SrvRply) encode(b *buffer.Buffer) error {
	if err := b.WriteU16(uint16(m.ErrorCode)); err != nil || m.ErrorCode != 0 {
		return err
	}
	if len(m.URLs) > 0xFFFF {
		return ErrFieldTooLong
	}
	if err := b.WriteU16(uint16(len(m.URLs))); err != nil {
		return err
	}
	for i := range m.URLs {
		if err := m.URLs[i].encode(b); err != nil {
			return err
		}
	}
	return nil
}

func (m *SrvRply) decode(b *buffer.Buffer) error {
	code, err := readErrorCode(b)
	if err != nil {
		return err
	}
	*m = SrvRply{ErrorCode: code}
	if code != 0 {
		return nil
	}
	count, err := b.ReadU16()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	// 每个条目至少 6 字节，先按剩余长度检查计数是否可信
	if int(count)*urlEntryMin > b.Remaining() {
		return ErrBodyTooShort
	}
	m.URLs = make([]URLEntry, 0, count)
	for i := 0; i < int(count); i++ {
		u, err := decodeURLEntry(b)
		if err != nil {
			return err
		}
		m.URLs = append(m.URLs, u)
	}
	return nil
}

// ============================================================================
//                              SrvReg (3)
// ============================================================================

// SrvReg 服务注册
type SrvReg struct {
	URL         URLEntry
	ServiceType string
	ScopeList   string
	AttrList    string
	Auths       []AuthBlock

	// PID 注册进程号，来自注册 PID 扩展；非零时编码为扩展
	PID uint32
}

func (*SrvReg) Function() types.FunctionID { return types.FuncSrvReg }

func (m *SrvReg) size() int {
	return m.URL.size() + str16(m.ServiceType) + str16(m.ScopeList) + str16(m.AttrList) + authBlocksSize(m.Auths)
}

func (m *SrvReg) encode(b *buffer.Buffer) error {
	if err := m.URL.encode(b); err != nil {
		return err
	}
	for _, s := range []string{m.ServiceType, m.ScopeList, m.AttrList} {
		if err := b.WriteString16(s); err != nil {
			return err
		}
	}
	return encodeAuthBlocks(b, m.Auths)
}

func (m *SrvReg) decode(b *buffer.Buffer) error {
	if b.Remaining() < urlEntryMin+7 {
		return ErrBodyTooShort
	}
	u, err := decodeURLEntry(b)
	if err != nil {
		return err
	}
	m.URL = u
	if err := readStrings(b, &m.ServiceType, &m.ScopeList, &m.AttrList); err != nil {
		return err
	}
	m.Auths, err = decodeAuthBlocks(b)
	return err
}

// ============================================================================
//                              SrvDeReg (4)
// ============================================================================

// SrvDeReg 服务注销；TagList 非空时仅删除列出的属性
type SrvDeReg struct {
	ScopeList string
	URL       URLEntry
	TagList   string
}

func (*SrvDeReg) Function() types.FunctionID { return types.FuncSrvDeReg }

func (m *SrvDeReg) size() int {
	return str16(m.ScopeList) + m.URL.size() + str16(m.TagList)
}

func (m *SrvDeReg) encode(b *buffer.Buffer) error {
	if err := b.WriteString16(m.ScopeList); err != nil {
		return err
	}
	if err := m.URL.encode(b); err != nil {
		return err
	}
	return b.WriteString16(m.TagList)
}

func (m *SrvDeReg) decode(b *buffer.Buffer) error {
	if b.Remaining() < 4 {
		return ErrBodyTooShort
	}
	var err error
	if m.ScopeList, err = b.ReadString16(); err != nil {
		return err
	}
	if m.URL, err = decodeURLEntry(b); err != nil {
		return err
	}
	m.TagList, err = b.ReadString16()
	return err
}

// ============================================================================
//                              SrvAck (5)
// ============================================================================

// SrvAck 注册/注销确认
type SrvAck struct {
	ErrorCode types.WireError
}

func (*SrvAck) Function() types.FunctionID { return types.FuncSrvAck }

func (m *SrvAck) size() int { return 2 }

func (m *SrvAck) encode(b *buffer.Buffer) error {
	return b.WriteU16(uint16(m.ErrorCode))
}

func (m *SrvAck) decode(b *buffer.Buffer) error {
	code, err := readErrorCode(b)
	m.ErrorCode = code
	return err
}

// ============================================================================
//                              AttrRqst (6)
// ============================================================================

// AttrRqst 属性请求；URL 可以是完整服务 URL 或服务类型
type AttrRqst struct {
	PRList    string
	URL       string
	ScopeList string
	TagList   string
	SPI       string
}

func (*AttrRqst) Function() types.FunctionID { return types.FuncAttrRqst }

func (m *AttrRqst) PreviousResponders() string          { return m.PRList }
func (m *AttrRqst) SetPreviousResponders(prlist string) { m.PRList = prlist }

func (m *AttrRqst) size() int {
	return str16(m.PRList) + str16(m.URL) + str16(m.ScopeList) + str16(m.TagList) + str16(m.SPI)
}

func (m *AttrRqst) encode(b *buffer.Buffer) error {
	for _, s := range []string{m.PRList, m.URL, m.ScopeList, m.TagList, m.SPI} {
		if err := b.WriteString16(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *AttrRqst) decode(b *buffer.Buffer) error {
	if b.Remaining() < 10 {
		return ErrBodyTooShort
	}
	return readStrings(b, &m.PRList, &m.URL, &m.ScopeList, &m.TagList, &m.SPI)
}

// ============================================================================
//                              AttrRply (7)
// ============================================================================

// AttrRply 属性应答
type AttrRply struct {
	ErrorCode types.WireError
	AttrList  string
	Auths     []AuthBlock
}

func (*AttrRply) Function() types.FunctionID { return types.FuncAttrRply }

func (m *AttrRply) size() int {
	if m.ErrorCode != 0 {
		return 2
	}
	return 2 + str16(m.AttrList) + authBlocksSize(m.Auths)
}

func (m *AttrRply) encode(b *buffer.Buffer) error {
	if err := b.WriteU16(uint16(m.ErrorCode)); err != nil || m.ErrorCode != 0 {
		return err
	}
	if err := b.WriteString16(m.AttrList); err != nil {
		return err
	}
	return encodeAuthBlocks(b, m.Auths)
}

func (m *AttrRply) decode(b *buffer.Buffer) error {
	code, err := readErrorCode(b)
	if err != nil {
		return err
	}
	*m = AttrRply{ErrorCode: code}
	if code != 0 {
		return nil
	}
	if b.Remaining() < 3 {
		return ErrBodyTooShort
	}
	if m.AttrList, err = b.ReadString16(); err != nil {
		return err
	}
	m.Auths, err = decodeAuthBlocks(b)
	return err
}

// ============================================================================
//                              DAAdvert (8)
// ============================================================================

// DAAdvert DA 通告
type DAAdvert struct {
	ErrorCode types.WireError
	// BootTimestamp DA 启动时间（秒），0 表示 DA 正在关闭
	BootTimestamp uint32
	URL           string
	ScopeList     string
	AttrList      string
	SPIList       string
	Auths         []AuthBlock
}

func (*DAAdvert) Function() types.FunctionID { return types.FuncDAAdvert }

func (m *DAAdvert) size() int {
	if m.ErrorCode != 0 {
		return 2
	}
	return 2 + 4 + str16(m.URL) + str16(m.ScopeList) + str16(m.AttrList) + str16(m.SPIList) + authBlocksSize(m.Auths)
}

func (m *DAAdvert) encode(b *buffer.Buffer) error {
	if err := b.WriteU16(uint16(m.ErrorCode)); err != nil || m.ErrorCode != 0 {
		return err
	}
	if err := b.WriteU32(m.BootTimestamp); err != nil {
		return err
	}
	for _, s := range []string{m.URL, m.ScopeList, m.AttrList, m.SPIList} {
		if err := b.WriteString16(s); err != nil {
			return err
		}
	}
	return encodeAuthBlocks(b, m.Auths)
}

func (m *DAAdvert) decode(b *buffer.Buffer) error {
	code, err := readErrorCode(b)
	if err != nil {
		return err
	}
	*m = DAAdvert{ErrorCode: code}
	if code != 0 {
		return nil
	}
	if b.Remaining() < 13 {
		return ErrBodyTooShort
	}
	m.BootTimestamp, _ = b.ReadU32()
	if err := readStrings(b, &m.URL, &m.ScopeList, &m.AttrList, &m.SPIList); err != nil {
		return err
	}
	m.Auths, err = decodeAuthBlocks(b)
	return err
}

// ============================================================================
//                              SrvTypeRqst (9)
// ============================================================================

// allAuthorities 命名权威长度为 0xFFFF 表示所有命名权威
const allAuthorities = 0xFFFF

// SrvTypeRqst 服务类型请求
type SrvTypeRqst struct {
	PRList string
	// AllAuthorities 为 true 时忽略 NamingAuthority
	AllAuthorities  bool
	NamingAuthority string
	ScopeList       string
}

func (*SrvTypeRqst) Function() types.FunctionID { return types.FuncSrvTypeRqst }

func (m *SrvTypeRqst) PreviousResponders() string          { return m.PRList }
func (m *SrvTypeRqst) SetPreviousResponders(prlist string) { m.PRList = prlist }

func (m *SrvTypeRqst) size() int {
	n := str16(m.PRList) + 2 + str16(m.ScopeList)
	if !m.AllAuthorities {
		n += len(m.NamingAuthority)
	}
	return n
}

func (m *SrvTypeRqst) encode(b *buffer.Buffer) error {
	if err := b.WriteString16(m.PRList); err != nil {
		return err
	}
	if m.AllAuthorities {
		if err := b.WriteU16(allAuthorities); err != nil {
			return err
		}
	} else {
		if len(m.NamingAuthority) >= allAuthorities {
			return ErrFieldTooLong
		}
		if err := b.WriteString16(m.NamingAuthority); err != nil {
			return err
		}
	}
	return b.WriteString16(m.ScopeList)
}

func (m *SrvTypeRqst) decode(b *buffer.Buffer) error {
	if b.Remaining() < 6 {
		return ErrBodyTooShort
	}
	var err error
	if m.PRList, err = b.ReadString16(); err != nil {
		return err
	}
	n, err := b.ReadU16()
	if err != nil {
		return err
	}
	m.AllAuthorities = n == allAuthorities
	if !m.AllAuthorities && n > 0 {
		p, err := b.ReadSlice(int(n))
		if err != nil {
			return err
		}
		m.NamingAuthority = string(p)
	}
	m.ScopeList, err = b.ReadString16()
	return err
}

// ============================================================================
//                              SrvTypeRply (10)
// ============================================================================

// SrvTypeRply 服务类型应答
type SrvTypeRply struct {
	ErrorCode   types.WireError
	SrvTypeList string
}

func (*SrvTypeRply) Function() types.FunctionID { return types.FuncSrvTypeRply }

func (m *SrvTypeRply) size() int {
	if m.ErrorCode != 0 {
		return 2
	}
	return 2 + str16(m.SrvTypeList)
}

func (m *SrvTypeRply) encode(b *buffer.Buffer) error {
	if err := b.WriteU16(uint16(m.ErrorCode)); err != nil || m.ErrorCode != 0 {
		return err
	}
	return b.WriteString16(m.SrvTypeList)
}

func (m *SrvTypeRply) decode(b *buffer.Buffer) error {
	code, err := readErrorCode(b)
	if err != nil {
		return err
	}
	*m = SrvTypeRply{ErrorCode: code}
	if code != 0 {
		return nil
	}
	m.SrvTypeList, err = b.ReadString16()
	return err
}

// ============================================================================
//                              SAAdvert (11)
// ============================================================================

// SAAdvert SA 通告
type SAAdvert struct {
	URL       string
	ScopeList string
	AttrList  string
	Auths     []AuthBlock
}

func (*SAAdvert) Function() types.FunctionID { return types.FuncSAAdvert }

func (m *SAAdvert) size() int {
	return str16(m.URL) + str16(m.ScopeList) + str16(m.AttrList) + authBlocksSize(m.Auths)
}

func (m *SAAdvert) encode(b *buffer.Buffer) error {
	for _, s := range []string{m.URL, m.ScopeList, m.AttrList} {
		if err := b.WriteString16(s); err != nil {
			return err
		}
	}
	return encodeAuthBlocks(b, m.Auths)
}

func (m *SAAdvert) decode(b *buffer.Buffer) error {
	if b.Remaining() < 7 {
		return ErrBodyTooShort
	}
	if err := readStrings(b, &m.URL, &m.ScopeList, &m.AttrList); err != nil {
		return err
	}
	var err error
	m.Auths, err = decodeAuthBlocks(b)
	return err
}

// readStrings 依次读取 16 位长度前缀字符串
func readStrings(b *buffer.Buffer, dst ...*string) error {
	for _, d := range dst {
		s, err := b.ReadString16()
		if err != nil {
			return err
		}
		*d = s
	}
	return nil
}
